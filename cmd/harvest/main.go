// Command harvest performs one synchronous harvest run and exits non-zero
// when the run fails.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/app"
	"github.com/user/listing-harvester/pkg/config"
	"github.com/user/listing-harvester/pkg/logger"
	"github.com/user/listing-harvester/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not load config:", err)
		return 1
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not build logger:", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, metrics.New(prometheus.NewRegistry()), log)
	if err != nil {
		log.Error("could not initialise harvester", zap.Error(err))
		return 1
	}
	defer application.Close()

	status, err := application.Runner.RunScraper(ctx)
	if err != nil {
		log.Error("harvest failed", zap.Error(err))
		return 1
	}
	log.Info("harvest complete",
		zap.String("run_id", status.ID),
		zap.Int("saved", status.Stats.Saved),
		zap.Int("discovered", status.Stats.Discovered),
	)
	return 0
}
