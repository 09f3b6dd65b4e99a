package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/db"
	"tenant-gateway/pkg/featureflags"
	"tenant-gateway/pkg/hashistack/secretmanager"
	"tenant-gateway/pkg/hashistack/servicediscover"
	"tenant-gateway/pkg/health"
	"tenant-gateway/pkg/httpapi"
	"tenant-gateway/pkg/logger"
	"tenant-gateway/pkg/otelcol"
	"tenant-gateway/pkg/profiling"
	"tenant-gateway/pkg/ratelimit"
	"tenant-gateway/pkg/redis"
	"tenant-gateway/pkg/security"
	"tenant-gateway/pkg/server"
	"tenant-gateway/services/connection"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/gateway"
	"tenant-gateway/services/policy"
	"tenant-gateway/services/schema"
)

func main() {
	configModule := config.Module
	if config.RemoteEnabled() {
		configModule = config.RemoteModule
	}

	opts := []fx.Option{
		secretmanager.Module,
		configModule,
		logger.Module,
		db.Module,
		redis.Module,
		otelcol.Module,
		profiling.Module,
		security.Module,
		directory.Module,
		policy.Module,
		schema.Module,
		connection.Module,
		ratelimit.Module,
		featureflags.Module,
		health.Module,
		fx.Provide(provideTenantPool),
		server.ProvideHTTPServer,
		httpapi.Module,
		gateway.Module,
		servicediscover.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.IsProduction() {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func provideTenantPool(r *connection.Registry) health.Pool {
	return r
}
