package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-qa/pkg/simpleqa/api"
	"github.com/tendant/simple-qa/pkg/simpleqa/config"
	repopg "github.com/tendant/simple-qa/pkg/simpleqa/repo/postgres"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	serverConfig, err := config.Load(
		config.WithEnv(),
		config.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}
	logger := serverConfig.NewLogger()

	ctx := context.Background()
	components, err := serverConfig.Build(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer components.Close()

	if components.Pool != nil {
		if err := repopg.Migrate(ctx, components.Pool); err != nil {
			logger.Error("Failed to migrate database", "err", err)
			os.Exit(1)
		}
	}

	handler := api.NewHandler(components.Service,
		api.WithLogger(logger),
		api.WithMaxUploadBytes(serverConfig.MaxUploadBytes),
	)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/v1", handler.Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Simple QA server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.Storage.Type,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	logger.Info("Server exiting")
}
