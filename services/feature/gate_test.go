package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tenant-gateway/pkg/errutil"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/policy"
)

func TestRequireFeature(t *testing.T) {
	decision := &policy.Decision{
		Allow:    true,
		Features: directory.FeatureFlags{IPO: true, Fees: false},
	}

	require.NoError(t, RequireFeature(decision, IPO))

	for _, name := range []string{Portfolio, Fees} {
		err := RequireFeature(decision, name)
		var denied *errutil.AccessDenied
		require.ErrorAs(t, err, &denied)
		require.Equal(t, errutil.ReasonFeatureDisabled, denied.Reason)
		require.Equal(t, name, denied.Feature)
	}

	require.EqualError(t, RequireFeature(decision, Portfolio),
		"Feature 'portfolio' is not enabled for your subscription.")
}

func TestRequireFeatureWithoutDecision(t *testing.T) {
	require.Error(t, RequireFeature(nil, IPO))
	require.Error(t, RequireFeature(&policy.Decision{Features: directory.FeatureFlags{IPO: true}}, IPO))
}

func TestRequireActiveSubscription(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	active := &directory.Subscription{PlanName: "pro", EndDate: now.Add(time.Hour)}
	got, err := RequireActiveSubscription(active, now)
	require.NoError(t, err)
	require.Same(t, active, got)

	for _, sub := range []*directory.Subscription{
		nil,
		{PlanName: "lapsed", EndDate: now.Add(-time.Hour)},
		{PlanName: "boundary", EndDate: now},
	} {
		got, err := RequireActiveSubscription(sub, now)
		require.Nil(t, got)
		require.EqualError(t, err, "Your subscription has expired. Please renew to continue.")
		var denied *errutil.AccessDenied
		require.ErrorAs(t, err, &denied)
		require.Equal(t, errutil.ReasonSubscriptionExpired, denied.Reason)
	}
}
