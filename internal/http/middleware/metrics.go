package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maintenance-gate/internal/metrics"
)

// Metrics records request counts and latency labelled by the matched route.
// Requests answered before routing, such as gate responses, use "unmatched".
func Metrics(m *metrics.HTTP) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.Observe(ctx.Request.Method, path, ctx.Writer.Status(), time.Since(start).Seconds())
	}
}
