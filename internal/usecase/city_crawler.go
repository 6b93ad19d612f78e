package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/checkpoint"
	"github.com/user/listing-harvester/internal/dedup"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/pkg/config"
	"github.com/user/listing-harvester/pkg/metrics"
	"github.com/user/listing-harvester/pkg/utils"
)

var (
	ErrRegionBlocked = errors.New("region search surface is behind an interstitial")
	ErrSaveFailed    = errors.New("saving listing failed")
)

// Sink persists an accepted record. The runner's sink appends to the log
// and then marks the fingerprint as seen.
type Sink func(ctx context.Context, record entity.ListingRecord) error

// CrawlerConfig controls discovery and pacing on a region's search surface.
type CrawlerConfig struct {
	ListingPathPattern   string
	BaseURL              string // resolves relative hrefs; empty uses the surface URL
	ScrollPixels         int
	MaxScrollRounds      int
	MaxNoProgressRounds  int
	MaxListingsPerRegion int // 0 = unlimited
	ListingDelayMin      time.Duration
	ListingDelayMax      time.Duration
	SecurityLinkMaxHits  int // 0 disables the security skip
}

func NewCrawlerConfig(cfg *config.Config) CrawlerConfig {
	lo, hi := cfg.ListingDelay()
	return CrawlerConfig{
		ListingPathPattern:   cfg.ListingPathPattern,
		BaseURL:              cfg.ListingBaseURL,
		ScrollPixels:         cfg.ScrollPixels,
		MaxScrollRounds:      cfg.MaxScrollRounds,
		MaxNoProgressRounds:  cfg.MaxNoProgressRounds,
		MaxListingsPerRegion: cfg.MaxListingsPerRegion,
		ListingDelayMin:      lo,
		ListingDelayMax:      hi,
		SecurityLinkMaxHits:  cfg.SecurityLinkMaxHits,
	}
}

// CityCrawler harvests one region: discover every listing link on the
// search surface first, then visit the unknown ones one at a time.
type CityCrawler struct {
	cfg       CrawlerConfig
	extractor *Extractor
	skips     repository.SecuritySkipRepository
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewCityCrawler(
	cfg CrawlerConfig,
	extractor *Extractor,
	skips repository.SecuritySkipRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CityCrawler {
	return &CityCrawler{
		cfg:       cfg,
		extractor: extractor,
		skips:     skips,
		metrics:   m,
		logger:    logger,
	}
}

// Crawl returns an error only when the whole region has to be skipped or ctx
// is done. Per-listing problems are logged, counted and skipped.
func (c *CityCrawler) Crawl(
	ctx context.Context,
	browser repository.BrowserRepository,
	region entity.Region,
	index *dedup.Store,
	sink Sink,
) (entity.RunStats, error) {
	var stats entity.RunStats
	log := c.logger.With(zap.String("region", region.ID))

	links, err := c.discover(ctx, browser, region, log)
	if err != nil {
		return stats, err
	}
	stats.Discovered = len(links)
	c.metrics.ListingsDiscovered.WithLabelValues(region.ID).Add(float64(len(links)))
	log.Info("listing links discovered", zap.Int("count", len(links)))

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		fp := utils.HashURL(link)
		if index.Contains(fp) {
			stats.Known++
			c.metrics.ListingsSkipped.WithLabelValues(region.ID, "known").Inc()
			continue
		}
		if c.overSecurityThreshold(ctx, fp, link, log) {
			stats.SecuritySkipped++
			c.metrics.ListingsSkipped.WithLabelValues(region.ID, "security").Inc()
			log.Info("skipping listing with repeated interstitials", zap.String("url", link))
			continue
		}

		ext, err := c.visit(ctx, browser, link, region, sink)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failures++
			c.metrics.ListingErrors.WithLabelValues(region.ID, errorType(err)).Inc()
			log.Warn("listing failed", zap.String("url", link), zap.Error(err))
			continue
		}
		if ext.Reason != entity.RejectInterstitial {
			c.clearInterstitials(ctx, fp, link, log)
		}
		if ext.Accepted() {
			stats.Saved++
			c.metrics.ListingsSaved.WithLabelValues(region.ID).Inc()
			log.Info("listing saved",
				zap.String("url", link),
				zap.String("title", ext.Record.Title),
				zap.String("price", ext.Record.Price),
			)
			continue
		}

		c.metrics.ListingsRejected.WithLabelValues(region.ID, string(ext.Reason)).Inc()
		switch ext.Reason {
		case entity.RejectInterstitial:
			stats.Interstitials++
			log.Warn("listing interstitial", zap.String("url", link), zap.String("reason", string(ext.Reason)))
			c.recordInterstitial(ctx, fp, link, log)
		case entity.RejectTooOld:
			stats.RejectedTooOld++
			log.Debug("listing rejected", zap.String("url", link), zap.String("reason", string(ext.Reason)))
		case entity.RejectNoTimestamp:
			stats.RejectedNoTimestamp++
			log.Debug("listing rejected", zap.String("url", link), zap.String("reason", string(ext.Reason)))
		default:
			stats.RejectedPrice++
			log.Debug("listing rejected", zap.String("url", link), zap.String("reason", string(ext.Reason)))
		}
	}
	return stats, nil
}

// discover loads the search surface and collects canonical listing URLs in
// document order, scrolling for more until the round limits are hit.
func (c *CityCrawler) discover(
	ctx context.Context,
	browser repository.BrowserRepository,
	region entity.Region,
	log *zap.Logger,
) ([]string, error) {
	page, err := browser.Open(ctx, region.URL)
	if err != nil {
		return nil, fmt.Errorf("open search surface: %w", err)
	}
	defer page.Close()

	body, err := page.BodyText(ctx)
	if err != nil {
		return nil, fmt.Errorf("read search surface: %w", err)
	}
	if checkpoint.IsCheckpoint(body) {
		return nil, fmt.Errorf("%w: %s", ErrRegionBlocked, region.URL)
	}

	baseRaw := c.cfg.BaseURL
	if baseRaw == "" {
		baseRaw = region.URL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return nil, fmt.Errorf("base url %q: %w", baseRaw, err)
	}

	var (
		links []string
		seen  = make(map[string]bool)
	)
	collect := func() (int, error) {
		hrefs, err := page.Attrs(ctx, "a[href]", "href")
		if err != nil {
			return 0, err
		}
		added := 0
		for _, href := range hrefs {
			if !strings.Contains(href, c.cfg.ListingPathPattern) {
				continue
			}
			link, err := utils.CanonicalURL(base, href)
			if err != nil || seen[link] {
				continue
			}
			seen[link] = true
			links = append(links, link)
			added++
		}
		return added, nil
	}
	full := func() bool {
		return c.cfg.MaxListingsPerRegion > 0 && len(links) >= c.cfg.MaxListingsPerRegion
	}

	if _, err := collect(); err != nil {
		return nil, fmt.Errorf("collect links: %w", err)
	}
	noProgress := 0
	for round := 0; round < c.cfg.MaxScrollRounds && !full(); round++ {
		if err := page.Scroll(ctx, c.cfg.ScrollPixels); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("scroll failed, keeping links found so far", zap.Int("round", round), zap.Error(err))
			break
		}
		added, err := collect()
		if err != nil {
			log.Warn("collect after scroll failed", zap.Int("round", round), zap.Error(err))
			break
		}
		if added > 0 {
			noProgress = 0
			continue
		}
		noProgress++
		if c.cfg.MaxNoProgressRounds > 0 && noProgress >= c.cfg.MaxNoProgressRounds {
			break
		}
	}

	if full() {
		links = links[:c.cfg.MaxListingsPerRegion]
	}
	return links, nil
}

func (c *CityCrawler) visit(
	ctx context.Context,
	browser repository.BrowserRepository,
	link string,
	region entity.Region,
	sink Sink,
) (Extraction, error) {
	page, err := browser.Open(ctx, link)
	if err != nil {
		return Extraction{}, err
	}
	defer page.Close()

	if err := utils.Sleep(ctx, utils.RandomDuration(c.cfg.ListingDelayMin, c.cfg.ListingDelayMax)); err != nil {
		return Extraction{}, err
	}

	ext, err := c.extractor.Extract(ctx, page, region.ID)
	if err != nil || !ext.Accepted() {
		return ext, err
	}
	if err := sink(ctx, *ext.Record); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return ext, nil
}

func (c *CityCrawler) overSecurityThreshold(ctx context.Context, fp, link string, log *zap.Logger) bool {
	if c.cfg.SecurityLinkMaxHits <= 0 || c.skips == nil {
		return false
	}
	hits, err := c.skips.Hits(ctx, fp)
	if err != nil {
		log.Warn("security skip lookup failed", zap.String("url", link), zap.Error(err))
		return false
	}
	return hits >= c.cfg.SecurityLinkMaxHits
}

func (c *CityCrawler) recordInterstitial(ctx context.Context, fp, link string, log *zap.Logger) {
	if c.skips == nil {
		return
	}
	hits, err := c.skips.RecordHit(ctx, fp)
	if err != nil {
		log.Warn("security skip update failed", zap.String("url", link), zap.Error(err))
		return
	}
	log.Debug("security skip hit recorded", zap.String("url", link), zap.Int("hits", hits))
}

// clearInterstitials forgets earlier hits once the listing renders past the
// checkpoint, so a transient challenge never blocks it for good.
func (c *CityCrawler) clearInterstitials(ctx context.Context, fp, link string, log *zap.Logger) {
	if c.skips == nil {
		return
	}
	if err := c.skips.Clear(ctx, fp); err != nil {
		log.Warn("security skip reset failed", zap.String("url", link), zap.Error(err))
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, repository.ErrNavigationTimeout):
		return "timeout"
	case errors.Is(err, repository.ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, repository.ErrElementNotFound):
		return "element"
	case errors.Is(err, ErrSaveFailed):
		return "save"
	default:
		return "unknown"
	}
}
