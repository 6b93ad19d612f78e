package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/app"
	"github.com/user/listing-harvester/internal/delivery/http/handler"
	"github.com/user/listing-harvester/internal/delivery/http/router"
	"github.com/user/listing-harvester/internal/usecase"
	"github.com/user/listing-harvester/pkg/config"
	"github.com/user/listing-harvester/pkg/logger"
	"github.com/user/listing-harvester/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not load config:", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Runner ---
	application, err := app.New(ctx, cfg, m, log)
	if err != nil {
		log.Fatal("could not initialise harvester", zap.Error(err))
	}
	defer application.Close()
	runner := application.Runner

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(runner, log)
	httpRouter := router.New(apiHandler, m, prometheus.DefaultGatherer, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort), zap.Int("regions", len(cfg.Regions)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
			stop()
		}
	}()

	if cfg.RunInterval > 0 {
		go schedule(ctx, runner, cfg.RunInterval, log)
	}

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("active run was cancelled", zap.Error(err))
	}
	log.Info("server exiting")
}

// schedule triggers a run every interval. A tick that finds a run still in
// progress is skipped.
func schedule(ctx context.Context, runner *usecase.Runner, interval time.Duration, log *zap.Logger) {
	log.Info("run scheduler enabled", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, started := runner.Start()
			if !started && id == "" {
				return
			}
			if !started {
				log.Info("scheduled run skipped, previous run still active", zap.String("run_id", id))
			}
		}
	}
}
