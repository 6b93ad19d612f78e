package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/dedup"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
)

// Orchestrator walks the configured regions strictly in order over one
// browser session.
type Orchestrator struct {
	crawler *CityCrawler
	logger  *zap.Logger
}

func NewOrchestrator(crawler *CityCrawler, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{crawler: crawler, logger: logger}
}

// Run crawls every region. A region that fails is logged and the next one is
// attempted; only cancellation of ctx ends the run early.
func (o *Orchestrator) Run(
	ctx context.Context,
	browser repository.BrowserRepository,
	regions []entity.Region,
	index *dedup.Store,
	sink Sink,
) (entity.RunStats, error) {
	var total entity.RunStats
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		log := o.logger.With(zap.String("region", region.ID))
		log.Info("region started", zap.String("url", region.URL))

		stats, err := o.crawler.Crawl(ctx, browser, region, index, sink)
		stats.Regions = 1
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				total.Add(stats)
				return total, ctxErr
			}
			stats.RegionsSkipped = 1
			if errors.Is(err, ErrRegionBlocked) {
				log.Warn("region skipped", zap.String("reason", string(entity.RejectInterstitial)), zap.Error(err))
			} else {
				log.Error("region failed", zap.Error(err))
			}
		}
		total.Add(stats)

		log.Info("region finished",
			zap.Int("discovered", stats.Discovered),
			zap.Int("known", stats.Known),
			zap.Int("saved", stats.Saved),
			zap.Int("failures", stats.Failures),
		)
	}
	return total, nil
}
