package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/listing-harvester/internal/checkpoint"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/parser"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/pkg/config"
	"github.com/user/listing-harvester/pkg/utils"
)

// ExtractorConfig holds the qualification rules for a listing page.
type ExtractorConfig struct {
	MaxAge        time.Duration
	PriceSentinel string
	RequirePrice  bool
	PriceMin      float64 // 0 = no lower bound
	PriceMax      float64 // 0 = no upper bound
	BodyTextLimit int
	TimeScanLimit int
}

func NewExtractorConfig(cfg *config.Config) ExtractorConfig {
	return ExtractorConfig{
		MaxAge:        cfg.MaxAge(),
		PriceSentinel: cfg.PriceSentinel,
		RequirePrice:  cfg.RequirePrice,
		PriceMin:      cfg.PriceMin,
		PriceMax:      cfg.PriceMax,
		BodyTextLimit: cfg.BodyTextLimit,
		TimeScanLimit: cfg.TimeScanLimit,
	}
}

// Extraction is the outcome of reading one listing page: either a Record
// or the Reason it was turned down.
type Extraction struct {
	Record *entity.ListingRecord
	Reason entity.RejectReason
}

func (e Extraction) Accepted() bool {
	return e.Record != nil
}

func rejected(reason entity.RejectReason) Extraction {
	return Extraction{Reason: reason}
}

// Extractor turns a rendered listing page into a ListingRecord.
type Extractor struct {
	cfg ExtractorConfig
	now func() time.Time
}

// NewExtractor creates an extractor. A nil now uses time.Now.
func NewExtractor(cfg ExtractorConfig, now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	if cfg.PriceSentinel == "" {
		cfg.PriceSentinel = entity.NotAvailable
	}
	if cfg.BodyTextLimit <= 0 {
		cfg.BodyTextLimit = checkpoint.PrefixLimit
	}
	return &Extractor{cfg: cfg, now: now}
}

// Extract reads page and decides whether it qualifies. The checkpoint test
// runs first so an interstitial never yields a record. An error means the
// page could not be read and says nothing about the listing itself.
func (x *Extractor) Extract(ctx context.Context, page repository.Page, region string) (Extraction, error) {
	now := x.now()

	body, err := page.BodyText(ctx)
	if err != nil {
		return Extraction{}, fmt.Errorf("read body: %w", err)
	}
	body = checkpoint.Prefix(body, x.cfg.BodyTextLimit)
	if checkpoint.IsCheckpoint(body) {
		return rejected(entity.RejectInterstitial), nil
	}

	title, err := page.FirstText(ctx, "h1")
	if err != nil && !errors.Is(err, repository.ErrElementNotFound) {
		return Extraction{}, fmt.Errorf("read title: %w", err)
	}
	if title == "" {
		title = entity.NotAvailable
	}

	price, ok := parser.ParsePrice(body)
	if !ok {
		if x.cfg.RequirePrice {
			return rejected(entity.RejectNoPrice), nil
		}
		price = x.cfg.PriceSentinel
	} else if !x.priceInRange(price) {
		return rejected(entity.RejectPriceOutOfRange), nil
	}

	spans, err := page.Texts(ctx, "span", x.cfg.TimeScanLimit)
	if err != nil {
		return Extraction{}, fmt.Errorf("read spans: %w", err)
	}
	var (
		postedAt time.Time
		found    bool
	)
	for _, s := range spans {
		if postedAt, found = parser.ParseRelativeTime(s, now); found {
			break
		}
	}
	if !found {
		return rejected(entity.RejectNoTimestamp), nil
	}
	if now.Sub(postedAt) > x.cfg.MaxAge {
		return rejected(entity.RejectTooOld), nil
	}

	url, err := utils.CanonicalURL(nil, page.URL())
	if err != nil {
		return Extraction{}, fmt.Errorf("canonical url %q: %w", page.URL(), err)
	}
	return Extraction{Record: &entity.ListingRecord{
		Region:      region,
		Title:       title,
		Price:       price,
		PostedAt:    postedAt,
		URL:         url,
		Fingerprint: utils.HashURL(url),
	}}, nil
}

func (x *Extractor) priceInRange(price string) bool {
	if x.cfg.PriceMin <= 0 && x.cfg.PriceMax <= 0 {
		return true
	}
	amount, ok := parser.PriceAmount(price)
	if !ok {
		return false
	}
	if x.cfg.PriceMin > 0 && amount < x.cfg.PriceMin {
		return false
	}
	if x.cfg.PriceMax > 0 && amount > x.cfg.PriceMax {
		return false
	}
	return true
}
