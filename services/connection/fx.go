package connection

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/security"
	"tenant-gateway/services/schema"
)

var Module = fx.Module("connection.module",
	fx.Provide(
		NewGormDialer,
		func(d *GormDialer) Dialer { return d },
		func(t *schema.Table) Binder { return t },
		provideRegistry,
	),
	fx.Invoke(func() error { return RegisterMetrics(prometheus.DefaultRegisterer) }),
)

type registryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Vault     *security.Vault
	Dialer    Dialer
	Binder    Binder
}

func provideRegistry(p registryParams) *Registry {
	r := NewRegistry(p.Vault, p.Dialer, p.Binder, OptionsFromConfig(p.Config))
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[Registry] Closing tenant connections...", zap.Int("count", r.Len()))
			return r.Close()
		},
	})
	return r
}
