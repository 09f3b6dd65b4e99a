package profiling

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"tenant-gateway/pkg/config"
)

func TestProfilerConfig(t *testing.T) {
	cfg := &config.Config{AppName: "tenant-gateway", AppEnv: "staging", NodeID: 4, RootDomain: "backoffice.example.com"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := ProfilerConfig(cfg)
	require.Equal(t, "tenant-gateway", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "4", pc.Tags["node"])
	require.Equal(t, "staging", pc.Tags["env"])
	require.Contains(t, pc.ProfileTypes, profileTypes[0])
}

func TestStartDisabledWithoutAddress(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, Start(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}
