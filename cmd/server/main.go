package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/maintenance-gate/internal/config"
	gatehttp "github.com/maintenance-gate/internal/http"
	"github.com/maintenance-gate/internal/logging"
	"github.com/maintenance-gate/internal/maintenance"
	"github.com/maintenance-gate/internal/metrics"
	"github.com/maintenance-gate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shared, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open maintenance store", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gate := maintenance.New(maintenance.Options{
		ManagementPath:  cfg.Maintenance.ManagementPath,
		ProtectedPrefix: cfg.Maintenance.ProtectedPrefix,
		AccessKey:       cfg.Maintenance.AccessKey,
		RefreshInterval: cfg.Maintenance.RefreshInterval,
		Logger:          logger,
		Metrics:         metrics.NewGate(reg),
	}.WithStore(shared))
	if cfg.Maintenance.AccessKey == "" {
		logger.Warn("management endpoint is not protected by an access key")
	}

	router := gatehttp.NewRouter(gatehttp.RouterDeps{
		Handler:     gatehttp.NewHandler(gate),
		Gate:        gate,
		Logger:      logger,
		HTTPMetrics: metrics.NewHTTP(reg),
		Gatherer:    reg,
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("maintenance gate listening",
			zap.String("addr", srv.Addr),
			zap.String("management_path", cfg.Maintenance.ManagementPath),
			zap.String("protected_prefix", cfg.Maintenance.ProtectedPrefix),
			zap.Duration("refresh_interval", cfg.Maintenance.RefreshInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// ensure gin uses release mode in production
func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
