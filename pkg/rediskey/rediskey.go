package rediskey

import "strings"

// Keys are colon separated, most general segment first.
const (
	TenantPrefix    = "tenant"
	RateLimitPrefix = "ratelimit"
)

func NamespaceKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// BuildTenantRateLimitKey returns "tenant:ratelimit:{tenantID}".
func BuildTenantRateLimitKey(tenantID string) string {
	return NamespaceKey(TenantPrefix, RateLimitPrefix, tenantID)
}
