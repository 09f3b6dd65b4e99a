package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/errutil"
	"tenant-gateway/pkg/featureflags"
	"tenant-gateway/pkg/ratelimit"
	"tenant-gateway/pkg/rediskey"
	"tenant-gateway/services/connection"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/feature"
	"tenant-gateway/services/identity"
	"tenant-gateway/services/policy"
)

const sessionKey = "tenant.session"

var rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "tenant_gateway_rejections_total",
	Help: "Requests rejected by the tenant gateway, by denial reason or error code.",
}, []string{"reason"})

// Acquirer hands out live tenant connections.
type Acquirer interface {
	Acquire(ctx context.Context, tenant *directory.Tenant) (*connection.Handle, error)
}

// Session is what the pipeline hands to business handlers.
type Session struct {
	Tenant   *directory.Tenant
	Decision *policy.Decision
	Handle   *connection.Handle
}

type Gateway struct {
	resolver  *identity.Resolver
	directory directory.Directory
	evaluator *policy.Evaluator
	registry  Acquirer
	limiter   ratelimit.Limiter
	rateLimit int
	live      func() (*config.Config, bool)
	switches  featureflags.Switchboard
	now       func() time.Time
}

type Options struct {
	// RateLimit is requests per tenant per limiter window. Zero disables it.
	RateLimit int
	// Live returns the latest reloaded config. When it reports one, its
	// rate limit replaces RateLimit.
	Live func() (*config.Config, bool)
	// Switches turns features off platform-wide. Nil leaves every feature
	// to the tenant license.
	Switches featureflags.Switchboard
}

func New(
	resolver *identity.Resolver,
	dir directory.Directory,
	evaluator *policy.Evaluator,
	registry Acquirer,
	limiter ratelimit.Limiter,
	opts Options,
) *Gateway {
	return &Gateway{
		resolver:  resolver,
		directory: dir,
		evaluator: evaluator,
		registry:  registry,
		limiter:   limiter,
		rateLimit: opts.RateLimit,
		live:      opts.Live,
		switches:  opts.Switches,
		now:       time.Now,
	}
}

func OptionsFromConfig(cfg *config.Config, switches featureflags.Switchboard) Options {
	return Options{RateLimit: cfg.RateLimit.Requests, Live: config.Current, Switches: switches}
}

// Handler resolves the tenant, authorizes the request and attaches a bound
// connection. Failures are attached with c.Error and rendered upstream.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := g.open(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func (g *Gateway) open(c *gin.Context) (*Session, error) {
	ctx := c.Request.Context()

	key, err := g.resolver.Resolve(c.Request.Host, c.GetHeader(identity.HeaderTenantKey))
	if err != nil {
		return nil, err
	}

	tenant, err := g.directory.FindTenantByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, &errutil.NotFoundError{Key: key}
	}

	whitelist, err := g.directory.ListWhitelist(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	sub, err := g.directory.LatestSubscription(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	decision, err := g.evaluator.Evaluate(policy.Input{
		Tenant:       tenant,
		Whitelist:    whitelist,
		ClientIP:     c.ClientIP(),
		Subscription: sub,
	})
	if err != nil {
		return nil, err
	}

	if err := g.limit(c, tenant.ID); err != nil {
		return nil, err
	}

	handle, err := g.registry.Acquire(ctx, tenant)
	if err != nil {
		return nil, err
	}

	return &Session{Tenant: tenant, Decision: decision, Handle: handle}, nil
}

func (g *Gateway) requestLimit() int {
	if g.live != nil {
		if cfg, ok := g.live(); ok {
			return cfg.RateLimit.Requests
		}
	}
	return g.rateLimit
}

func (g *Gateway) limit(c *gin.Context, tenantID string) error {
	n := g.requestLimit()
	if n <= 0 || g.limiter == nil {
		return nil
	}

	d := g.limiter.Allow(c.Request.Context(), rediskey.BuildTenantRateLimitKey(tenantID), n)
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if d.Allowed {
		return nil
	}

	retry := int(time.Until(d.ResetAt).Seconds()) + 1
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	return errutil.TooManyRequest("Too many requests for this tenant", nil)
}

// RequireFeature rejects requests whose license does not grant name, or
// when name is switched off platform-wide.
func (g *Gateway) RequireFeature(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			fail(c, errutil.Internal("tenant session missing", nil))
			return
		}
		if err := feature.RequireFeature(sess.Decision, name); err != nil {
			fail(c, err)
			return
		}
		if g.switches != nil && !g.switches.Enabled(c.Request.Context(), name) {
			fail(c, &errutil.AccessDenied{Reason: errutil.ReasonFeatureDisabled, Feature: name})
			return
		}
		c.Next()
	}
}

// RequireSubscription rejects requests from tenants without a current
// subscription.
func (g *Gateway) RequireSubscription() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			fail(c, errutil.Internal("tenant session missing", nil))
			return
		}
		if _, err := feature.RequireActiveSubscription(sess.Decision.Subscription, g.now()); err != nil {
			fail(c, err)
			return
		}
		c.Next()
	}
}

func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok && sess != nil
}

func fail(c *gin.Context, err error) {
	if v := errutil.From(err); len(v.Details) > 0 && v.Details[0].Field == "reason" {
		rejections.WithLabelValues(v.Details[0].Message).Inc()
	} else {
		rejections.WithLabelValues(string(v.Code)).Inc()
	}
	_ = c.Error(err)
	c.Abort()
}
