package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "tenant:ratelimit:t_1", BuildTenantRateLimitKey("t_1"))
	require.Equal(t, "a:b:c", NamespaceKey("a", "b", "c"))
	require.Equal(t, "a", NamespaceKey("a"))
}
