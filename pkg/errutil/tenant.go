package errutil

import (
	"errors"
	"fmt"
)

// Reason names why a tenant request was denied.
type Reason string

const (
	ReasonSuspended           Reason = "suspended"
	ReasonExpired             Reason = "expired"
	ReasonIPBlocked           Reason = "ip_blocked"
	ReasonNoLicense           Reason = "no_license"
	ReasonFeatureDisabled     Reason = "feature_disabled"
	ReasonSubscriptionExpired Reason = "subscription_expired"
)

const (
	msgTenantNotSpecified = "Tenant not specified"
	msgTenantNotFound     = "Tenant not found"
	msgInternal           = "Internal server error"
)

// ResolutionError means no tenant key could be derived from the request.
type ResolutionError struct{}

func (e *ResolutionError) Error() string      { return msgTenantNotSpecified }
func (e *ResolutionError) Status() CoreStatus { return StatusBadRequest }

// NotFoundError means the directory has no tenant for the key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string      { return msgTenantNotFound }
func (e *NotFoundError) Status() CoreStatus { return StatusNotFound }

// AccessDenied is an expected, user-facing denial. Feature is set for
// ReasonFeatureDisabled.
type AccessDenied struct {
	Reason  Reason
	Feature string
}

func (e *AccessDenied) Status() CoreStatus { return StatusForbidden }

func (e *AccessDenied) Error() string {
	switch e.Reason {
	case ReasonSuspended:
		return "Your account has been suspended. Please contact support."
	case ReasonExpired:
		return "Your account has expired. Please contact support to reactivate."
	case ReasonIPBlocked:
		return "Access denied: your IP address is not whitelisted."
	case ReasonNoLicense:
		return "No active license found for this account."
	case ReasonFeatureDisabled:
		return fmt.Sprintf("Feature '%s' is not enabled for your subscription.", e.Feature)
	case ReasonSubscriptionExpired:
		return "Your subscription has expired. Please renew to continue."
	default:
		return "Access denied."
	}
}

func Denied(reason Reason) *AccessDenied {
	return &AccessDenied{Reason: reason}
}

// CryptoError wraps a malformed or undecryptable secret.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Status() CoreStatus { return StatusInternal }
func (e *CryptoError) Unwrap() error      { return e.Err }

func (e *CryptoError) Error() string {
	if e.Err == nil {
		return "crypto: " + e.Op
	}
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

// ConnectivityError wraps an unreachable directory or tenant database.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Status() CoreStatus { return StatusInternal }
func (e *ConnectivityError) Unwrap() error      { return e.Err }

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

// IsExpected reports whether err is a user-facing outcome rather than a fault.
func IsExpected(err error) bool {
	var (
		re *ResolutionError
		nf *NotFoundError
		ad *AccessDenied
	)
	return errors.As(err, &re) || errors.As(err, &nf) || errors.As(err, &ad)
}

// From normalises any error into a BaseError for rendering. Faults become a
// generic internal error carrying the cause.
func From(err error) BaseError {
	var base BaseError
	if errors.As(err, &base) {
		return base
	}

	var ad *AccessDenied
	if errors.As(err, &ad) {
		return BaseError{
			Code:    StatusForbidden,
			Message: ad.Error(),
			Details: []Detail{{Field: "reason", Message: string(ad.Reason)}},
		}
	}

	var re *ResolutionError
	if errors.As(err, &re) {
		return BaseError{Code: StatusBadRequest, Message: re.Error()}
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return BaseError{Code: StatusNotFound, Message: nf.Error()}
	}

	return BaseError{Code: StatusInternal, Message: msgInternal, Err: err}
}
