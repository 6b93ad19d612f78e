// Package app wires configuration into the runner and its collaborators.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/adapter/chromedp_browser"
	"github.com/user/listing-harvester/internal/adapter/filestate"
	"github.com/user/listing-harvester/internal/adapter/jsonl"
	"github.com/user/listing-harvester/internal/adapter/memory"
	"github.com/user/listing-harvester/internal/adapter/postgres"
	redis_adapter "github.com/user/listing-harvester/internal/adapter/redis"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/internal/usecase"
	"github.com/user/listing-harvester/pkg/config"
	"github.com/user/listing-harvester/pkg/metrics"
)

// App is a ready-to-use runner plus the connections it holds.
type App struct {
	Runner *usecase.Runner

	dbpool *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.Logger
}

// New opens the optional Postgres and Redis connections and assembles the
// runner. Without POSTGRES_URL run statuses live in memory; without
// REDIS_ADDR the security skip state is a JSON file in the data directory.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	var statuses repository.RunStatusRepository
	if cfg.PostgresURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := dbpool.Ping(ctx); err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.dbpool = dbpool
		repo, err := postgres.NewRunStatusRepo(ctx, dbpool)
		if err != nil {
			a.Close()
			return nil, err
		}
		statuses = repo
		logger.Info("PostgreSQL run status store ready")
	} else {
		statuses = memory.NewRunStatusRepo()
		logger.Info("keeping run statuses in memory")
	}

	var skips repository.SecuritySkipRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.rdb = rdb
		skips = redis_adapter.NewSecuritySkipRepo(rdb)
		logger.Info("Redis security skip state ready", zap.String("addr", cfg.RedisAddr))
	} else {
		skips = filestate.NewSecuritySkipRepo(cfg.SecuritySkipPath, logger)
	}

	settleMin, settleMax := cfg.SearchSettle()
	launcher := chromedp_browser.NewLauncher(chromedp_browser.Options{
		StatePath:       cfg.StatePath,
		Headless:        cfg.Headless,
		ChromeBin:       cfg.ChromeBin,
		ViewportWidth:   cfg.ViewportWidth,
		ViewportHeight:  cfg.ViewportHeight,
		Locale:          cfg.Locale,
		UserAgent:       cfg.UserAgent,
		PageLoadTimeout: cfg.PageLoadTimeout(),
		SettleMin:       settleMin,
		SettleMax:       settleMax,
	}, logger)

	extractor := usecase.NewExtractor(usecase.NewExtractorConfig(cfg), nil)
	crawler := usecase.NewCityCrawler(usecase.NewCrawlerConfig(cfg), extractor, skips, m, logger)
	orchestrator := usecase.NewOrchestrator(crawler, logger)

	a.Runner = usecase.NewRunner(
		usecase.RunnerConfig{LogPath: cfg.ListingsLogPath, Regions: cfg.Regions},
		launcher,
		openListingLog,
		orchestrator,
		statuses,
		m,
		logger,
	)
	return a, nil
}

func openListingLog(path string) (repository.ListingLogRepository, error) {
	l, err := jsonl.NewListingLog(path)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Close releases the database connections.
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("closing redis client failed", zap.Error(err))
		}
	}
	if a.dbpool != nil {
		a.dbpool.Close()
	}
}
