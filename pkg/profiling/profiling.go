package profiling

import (
	"context"
	"strconv"

	"tenant-gateway/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(Start))

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockDuration,
}

// ProfilerConfig tags profiles with the gateway node so per-node connection
// pools can be told apart.
func ProfilerConfig(c *config.Config) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes:    profileTypes,
		Tags: map[string]string{
			"env":         c.AppEnv,
			"version":     c.AppVersion,
			"node":        strconv.FormatInt(c.NodeID, 10),
			"root_domain": c.RootDomain,
		},
	}
}

// Start runs continuous profiling when PYROSCOPE.ADDR is set.
func Start(lc fx.Lifecycle, c *config.Config) error {
	if c.Pyroscope.Addr == "" {
		return nil
	}

	profiler, err := pyroscope.Start(ProfilerConfig(c))
	if err != nil {
		zap.L().Error("[Profiling] failed to start pyroscope", zap.Error(err))
		return err
	}
	zap.L().Info("[Profiling] pyroscope started", zap.String("addr", c.Pyroscope.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})

	return nil
}
