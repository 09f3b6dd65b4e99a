package middleware

import (
	"tenant-gateway/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Error renders the last error attached to the gin context once the chain
// has run. Underlying causes are only shown when exposeCause is set.
func Error(exposeCause bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		v := errutil.From(last.Err)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", string(v.Code)),
			zap.Error(last.Err),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			fields = append(fields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}

		if errutil.IsExpected(last.Err) || v.Code.HTTPStatus() < 500 {
			zap.L().Debug("request rejected", fields...)
		} else {
			zap.L().Error("request failed", fields...)
		}

		c.JSON(v.Code.HTTPStatus(), v.JSON(exposeCause))
	}
}
