package gateway

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"tenant-gateway/pkg/config"
	"tenant-gateway/services/connection"
	"tenant-gateway/services/identity"
)

var Module = fx.Module("gateway.module",
	fx.Provide(
		func(cfg *config.Config) *identity.Resolver { return identity.NewResolver(cfg.RootDomain) },
		func(r *connection.Registry) Acquirer { return r },
		OptionsFromConfig,
		New,
	),
	fx.Invoke(
		RegisterRoutes,
		func() error { return registerMetrics(prometheus.DefaultRegisterer) },
	),
)

func registerMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(rejections); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}
