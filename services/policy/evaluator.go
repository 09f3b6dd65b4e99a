package policy

import (
	"time"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/errutil"
	"tenant-gateway/services/directory"
)

// Input is a snapshot of directory state for one request.
type Input struct {
	Tenant       *directory.Tenant
	Whitelist    []*directory.IPWhitelist
	ClientIP     string
	Subscription *directory.Subscription
}

// Decision is the per-request verdict. On allow it carries the first
// active license and its feature flags.
type Decision struct {
	Allow        bool
	Reason       errutil.Reason
	License      *directory.License
	Subscription *directory.Subscription
	Features     directory.FeatureFlags
}

type Evaluator struct {
	Match MatchMode
	Now   func() time.Time
}

func NewEvaluator(mode MatchMode) *Evaluator {
	return &Evaluator{Match: mode, Now: time.Now}
}

func ProvideEvaluator(cfg *config.Config) (*Evaluator, error) {
	mode, err := ParseMatchMode(cfg.Policy.WhitelistMatch)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(mode), nil
}

// Evaluate runs the checks in order and stops at the first failure. A denial
// returns both the decision and an *errutil.AccessDenied.
func (e *Evaluator) Evaluate(in Input) (*Decision, error) {
	if in.Tenant == nil {
		return &Decision{}, &errutil.NotFoundError{}
	}

	switch in.Tenant.Status {
	case directory.Suspended:
		return deny(errutil.ReasonSuspended)
	case directory.Expired:
		return deny(errutil.ReasonExpired)
	}

	if len(in.Whitelist) > 0 && !e.whitelisted(in.Whitelist, in.ClientIP) {
		return deny(errutil.ReasonIPBlocked)
	}

	license := FirstActiveLicense(in.Tenant.Licenses, e.now())
	if license == nil {
		return deny(errutil.ReasonNoLicense)
	}

	return &Decision{
		Allow:        true,
		License:      license,
		Subscription: in.Subscription,
		Features:     license.FeatureFlags(),
	}, nil
}

func (e *Evaluator) whitelisted(entries []*directory.IPWhitelist, clientIP string) bool {
	for _, entry := range entries {
		if e.Match.Match(entry.IPAddress, clientIP) {
			return true
		}
	}
	return false
}

func (e *Evaluator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// FirstActiveLicense returns the first active license in directory order.
func FirstActiveLicense(licenses []directory.License, now time.Time) *directory.License {
	for i := range licenses {
		if licenses[i].IsActive(now) {
			return &licenses[i]
		}
	}
	return nil
}

func deny(reason errutil.Reason) (*Decision, error) {
	return &Decision{Reason: reason}, errutil.Denied(reason)
}
