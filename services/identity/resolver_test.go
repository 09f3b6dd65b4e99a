package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tenant-gateway/pkg/errutil"
)

func TestResolveFromHost(t *testing.T) {
	r := NewResolver("backoffice.example.com")

	cases := map[string]string{
		"acme.backoffice.example.com":      "acme",
		"ACME.backoffice.example.com:8443": "acme",
		"acme":                             "acme",
		"acme.localhost:3000":              "acme",
	}
	for host, want := range cases {
		got, err := r.Resolve(host, "")
		require.NoError(t, err, host)
		require.Equal(t, want, got, host)
	}
}

func TestResolveAbsentHost(t *testing.T) {
	r := NewResolver("backoffice.example.com")

	for _, host := range []string{
		"",
		"localhost",
		"localhost:8080",
		"www.backoffice.example.com",
		"backoffice.example.com",
		"127.0.0.1:8080",
		"[::1]:8080",
	} {
		_, err := r.Resolve(host, "")
		var resErr *errutil.ResolutionError
		require.ErrorAs(t, err, &resErr, host)
		require.Equal(t, "Tenant not specified", err.Error())
	}
}

func TestResolveOverrideWins(t *testing.T) {
	r := NewResolver("")

	got, err := r.Resolve("acme.example.com", "  globex ")
	require.NoError(t, err)
	require.Equal(t, "globex", got)

	got, err = r.Resolve("localhost", "globex")
	require.NoError(t, err)
	require.Equal(t, "globex", got)

	got, err = r.Resolve("acme.example.com", "   ")
	require.NoError(t, err)
	require.Equal(t, "acme", got)
}
