package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cid-coder/pkg/common/config"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/gateway/middleware"
	"github.com/synaptica-ai/cid-coder/pkg/gateway/routes"
	"github.com/synaptica-ai/cid-coder/pkg/observability/metrics"
	"github.com/synaptica-ai/cid-coder/pkg/pipeline"
)

func main() {
	logger.Init()
	cfg := config.Load()

	p, cleanup, err := pipeline.FromConfig(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure pipeline")
	}
	defer cleanup()

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.BodyLimit(10 << 20))
	apiRouter.Use(middleware.Timeout(cfg.WriteTimeout))
	apiRouter.Use(middleware.RateLimit(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst))
	routes.NewCodingHandler(p, pipeline.DirsFor(cfg)).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Coder Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Coder Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Coder Service stopped")
}
