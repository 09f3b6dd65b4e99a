package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"tenant-gateway/pkg/health"
)

var Module = fx.Module("httpapi",
	fx.Invoke(RegisterOperational),
)

// RegisterOperational mounts health and metrics endpoints. They sit outside
// the tenant pipeline.
func RegisterOperational(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
