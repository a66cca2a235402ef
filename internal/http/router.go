package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/maintenance-gate/internal/http/middleware"
	"github.com/maintenance-gate/internal/maintenance"
	"github.com/maintenance-gate/internal/metrics"
)

type RouterDeps struct {
	Handler     *Handler
	Gate        *maintenance.Gate
	Logger      *zap.Logger
	HTTPMetrics *metrics.HTTP
	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// NewRouter wires gin with the maintenance gate in front of every route.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	// A bare protected prefix such as /api must reach the gate instead of
	// being redirected to /api/ before any middleware runs.
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}
	r.Use(middleware.Maintenance(deps.Gate))

	r.GET("/health", deps.Handler.Health)
	r.GET("/status", deps.Handler.Status)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Any("/*path", deps.Handler.API)

	return r
}
