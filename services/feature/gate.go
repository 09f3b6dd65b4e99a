package feature

import (
	"time"

	"tenant-gateway/pkg/errutil"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/policy"
)

// Well-known feature flags checked by back-office routes.
const (
	Portfolio = "portfolio"
	IPO       = "ipo"
	Fees      = "fees"
)

// RequireFeature fails unless the decision's license grants name.
func RequireFeature(decision *policy.Decision, name string) error {
	if decision != nil && decision.Allow && decision.Features[name] {
		return nil
	}
	return &errutil.AccessDenied{Reason: errutil.ReasonFeatureDisabled, Feature: name}
}

// RequireActiveSubscription returns sub when its end date is after now.
func RequireActiveSubscription(sub *directory.Subscription, now time.Time) (*directory.Subscription, error) {
	if sub == nil || !sub.IsActive(now) {
		return nil, errutil.Denied(errutil.ReasonSubscriptionExpired)
	}
	return sub, nil
}
