package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/user/listing-harvester/internal/entity"
)

// DefaultRegions are searched when neither the config file nor REGIONS names any.
var DefaultRegions = []entity.Region{
	{ID: "montreal", URL: "https://www.facebook.com/marketplace/montreal/vehicles/?sortBy=creation_time_descend&topLevelVehicleType=car_truck&exact=false"},
	{ID: "quebec", URL: "https://www.facebook.com/marketplace/quebec/vehicles/?sortBy=creation_time_descend&topLevelVehicleType=car_truck&exact=false"},
}

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	DataDir             string `mapstructure:"DATA_DIR"`
	ListingsLogPath     string `mapstructure:"LISTINGS_LOG_PATH"`
	SecuritySkipPath    string `mapstructure:"SECURITY_SKIP_PATH"`
	SecurityLinkMaxHits int    `mapstructure:"SECURITY_LINK_MAX_HITS"`
	StatePath           string `mapstructure:"FB_STATE_PATH"`

	Regions []entity.Region `mapstructure:"-"`

	MaxAgeMinutes int     `mapstructure:"MAX_AGE_MINUTES"`
	PriceSentinel string  `mapstructure:"PRICE_SENTINEL"`
	RequirePrice  bool    `mapstructure:"REQUIRE_PRICE"`
	PriceMin      float64 `mapstructure:"PRICE_MIN"`
	PriceMax      float64 `mapstructure:"PRICE_MAX"`
	BodyTextLimit int     `mapstructure:"BODY_TEXT_LIMIT"`
	TimeScanLimit int     `mapstructure:"TIME_SCAN_LIMIT"`

	ListingPathPattern   string `mapstructure:"LISTING_PATH_PATTERN"`
	ListingBaseURL       string `mapstructure:"LISTING_BASE_URL"`
	ScrollPixels         int    `mapstructure:"SCROLL_PIXELS"`
	MaxScrollRounds      int    `mapstructure:"MAX_SCROLL_ROUNDS"`
	MaxNoProgressRounds  int    `mapstructure:"MAX_NO_PROGRESS_ROUNDS"`
	MaxListingsPerRegion int    `mapstructure:"MAX_LISTINGS_PER_REGION"`

	PageLoadTimeoutSeconds int `mapstructure:"PAGE_LOAD_TIMEOUT_SECONDS"`
	SearchSettleMinMS      int `mapstructure:"SEARCH_SETTLE_MIN_MS"`
	SearchSettleMaxMS      int `mapstructure:"SEARCH_SETTLE_MAX_MS"`
	ListingDelayMinMS      int `mapstructure:"LISTING_DELAY_MIN_MS"`
	ListingDelayMaxMS      int `mapstructure:"LISTING_DELAY_MAX_MS"`

	Headless       bool   `mapstructure:"HEADLESS"`
	ChromeBin      string `mapstructure:"CHROME_BIN"`
	ViewportWidth  int    `mapstructure:"VIEWPORT_WIDTH"`
	ViewportHeight int    `mapstructure:"VIEWPORT_HEIGHT"`
	Locale         string `mapstructure:"LOCALE"`
	UserAgent      string `mapstructure:"USER_AGENT"`

	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RunInterval time.Duration `mapstructure:"RUN_INTERVAL"`
}

// Load reads an optional .env file, then the optional YAML file named by
// CONFIG_FILE, then the environment. Environment values win.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	regions, err := loadRegions(v)
	if err != nil {
		return nil, err
	}
	cfg.Regions = regions

	if cfg.ListingsLogPath == "" {
		cfg.ListingsLogPath = filepath.Join(cfg.DataDir, "cars.jsonl")
	}
	if cfg.SecuritySkipPath == "" {
		cfg.SecuritySkipPath = filepath.Join(cfg.DataDir, "security_skip.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CONFIG_FILE", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DATA_DIR", "/tmp")
	v.SetDefault("LISTINGS_LOG_PATH", "")
	v.SetDefault("SECURITY_SKIP_PATH", "")
	v.SetDefault("SECURITY_LINK_MAX_HITS", 0)
	v.SetDefault("FB_STATE_PATH", "fb_state.json")

	v.SetDefault("MAX_AGE_MINUTES", 10)
	v.SetDefault("PRICE_SENTINEL", entity.NotAvailable)
	v.SetDefault("REQUIRE_PRICE", false)
	v.SetDefault("PRICE_MIN", 0)
	v.SetDefault("PRICE_MAX", 0)
	v.SetDefault("BODY_TEXT_LIMIT", 2000)
	v.SetDefault("TIME_SCAN_LIMIT", 200)

	v.SetDefault("LISTING_PATH_PATTERN", "/marketplace/item/")
	v.SetDefault("LISTING_BASE_URL", "https://www.facebook.com")
	v.SetDefault("SCROLL_PIXELS", 2600)
	v.SetDefault("MAX_SCROLL_ROUNDS", 3)
	v.SetDefault("MAX_NO_PROGRESS_ROUNDS", 2)
	v.SetDefault("MAX_LISTINGS_PER_REGION", 0)

	v.SetDefault("PAGE_LOAD_TIMEOUT_SECONDS", 30)
	v.SetDefault("SEARCH_SETTLE_MIN_MS", 1000)
	v.SetDefault("SEARCH_SETTLE_MAX_MS", 2000)
	v.SetDefault("LISTING_DELAY_MIN_MS", 500)
	v.SetDefault("LISTING_DELAY_MAX_MS", 1000)

	v.SetDefault("HEADLESS", true)
	v.SetDefault("CHROME_BIN", "")
	v.SetDefault("VIEWPORT_WIDTH", 1400)
	v.SetDefault("VIEWPORT_HEIGHT", 900)
	v.SetDefault("LOCALE", "en-US")
	v.SetDefault("USER_AGENT", "")

	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RUN_INTERVAL", "0s")
}

// loadRegions takes REGIONS from the environment ("id=url,id=url") or the
// regions list of the config file, falling back to DefaultRegions.
func loadRegions(v *viper.Viper) ([]entity.Region, error) {
	switch raw := v.Get("REGIONS").(type) {
	case nil:
		return append([]entity.Region(nil), DefaultRegions...), nil
	case string:
		if strings.TrimSpace(raw) == "" {
			return append([]entity.Region(nil), DefaultRegions...), nil
		}
		return ParseRegions(raw)
	default:
		var regions []entity.Region
		if err := v.UnmarshalKey("REGIONS", &regions); err != nil {
			return nil, fmt.Errorf("config: decode regions: %w", err)
		}
		return regions, nil
	}
}

// ParseRegions parses "id=url,id=url". Order is preserved.
func ParseRegions(raw string) ([]entity.Region, error) {
	var regions []entity.Region
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, u, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("config: region %q: want id=url", pair)
		}
		regions = append(regions, entity.Region{ID: strings.TrimSpace(id), URL: strings.TrimSpace(u)})
	}
	return regions, nil
}

// Validate rejects settings the harvester cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("at least one region is required"))
	}
	seen := make(map[string]bool, len(c.Regions))
	for _, r := range c.Regions {
		if r.ID == "" || r.URL == "" {
			errs = append(errs, fmt.Errorf("region %q: id and url are required", r.ID))
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("region %q: duplicate id", r.ID))
		}
		seen[r.ID] = true
	}
	if c.MaxAgeMinutes <= 0 {
		errs = append(errs, errors.New("MAX_AGE_MINUTES must be positive"))
	}
	if c.PriceMax > 0 && c.PriceMin > c.PriceMax {
		errs = append(errs, errors.New("PRICE_MIN must not exceed PRICE_MAX"))
	}
	if c.PageLoadTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("PAGE_LOAD_TIMEOUT_SECONDS must be positive"))
	}
	if c.ListingPathPattern == "" {
		errs = append(errs, errors.New("LISTING_PATH_PATTERN is required"))
	}
	if c.SecurityLinkMaxHits < 0 {
		errs = append(errs, errors.New("SECURITY_LINK_MAX_HITS must not be negative"))
	}
	if c.RunInterval < 0 {
		errs = append(errs, errors.New("RUN_INTERVAL must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSeconds) * time.Second
}

func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMinutes) * time.Minute
}

func (c *Config) SearchSettle() (time.Duration, time.Duration) {
	return ms(c.SearchSettleMinMS), ms(c.SearchSettleMaxMS)
}

func (c *Config) ListingDelay() (time.Duration, time.Duration) {
	return ms(c.ListingDelayMinMS), ms(c.ListingDelayMaxMS)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
