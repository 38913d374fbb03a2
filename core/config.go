package core

import (
	"fmt"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type WebhookConfig struct {
	Path         string        `koanf:"path" mapstructure:"path"`
	Secret       string        `koanf:"secret" mapstructure:"secret"`
	ReplayWindow time.Duration `koanf:"replay_window" mapstructure:"replay_window"`
}

type ShopifyConfig struct {
	ShopDomain        string  `koanf:"shop_domain" mapstructure:"shop_domain"`
	AccessToken       string  `koanf:"access_token" mapstructure:"access_token"`
	APIVersion        string  `koanf:"api_version" mapstructure:"api_version"`
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `koanf:"burst" mapstructure:"burst"`
}

type SyncConfig struct {
	Interval         time.Duration `koanf:"interval" mapstructure:"interval"`
	PageSize         int           `koanf:"page_size" mapstructure:"page_size"`
	MaxPageSize      int           `koanf:"max_page_size" mapstructure:"max_page_size"`
	MaxPagesPerRun   int           `koanf:"max_pages_per_run" mapstructure:"max_pages_per_run"`
	RunTimeout       time.Duration `koanf:"run_timeout" mapstructure:"run_timeout"`
	LeaseTTL         time.Duration `koanf:"lease_ttl" mapstructure:"lease_ttl"`
	DeletedRetention time.Duration `koanf:"deleted_retention" mapstructure:"deleted_retention"`
	WebhookRetention time.Duration `koanf:"webhook_retention" mapstructure:"webhook_retention"`
	DefaultCurrency  string        `koanf:"default_currency" mapstructure:"default_currency"`
}

type DatabaseConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `koanf:"concurrency" mapstructure:"concurrency"`
	MaxAttempts  int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	RequeueAfter time.Duration `koanf:"requeue_after" mapstructure:"requeue_after"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Shopify     ShopifyConfig  `koanf:"shopify" mapstructure:"shopify"`
	Sync        SyncConfig     `koanf:"sync" mapstructure:"sync"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	Worker      WorkerConfig   `koanf:"worker" mapstructure:"worker"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "catalog-sync",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Webhook: WebhookConfig{
			Path:         "/webhooks",
			ReplayWindow: 0,
		},
		Shopify: ShopifyConfig{
			APIVersion:        "2024-10",
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Sync: SyncConfig{
			Interval:         10 * time.Minute,
			PageSize:         50,
			MaxPageSize:      100,
			MaxPagesPerRun:   200,
			RunTimeout:       8 * time.Minute,
			LeaseTTL:         15 * time.Minute,
			DeletedRetention: 14 * 24 * time.Hour,
			WebhookRetention: 7 * 24 * time.Hour,
			DefaultCurrency:  "USD",
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			PingTimeout: 5 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:  2,
			MaxAttempts:  5,
			RequeueAfter: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.Webhook.Path), "/") {
		return fmt.Errorf("core: webhook.path must start with /")
	}
	if c.Webhook.ReplayWindow < 0 {
		return fmt.Errorf("core: webhook.replay_window must not be negative")
	}
	if c.Sync.MaxPageSize < 1 || c.Sync.MaxPageSize > 250 {
		return fmt.Errorf("core: sync.max_page_size must be within [1, 250]")
	}
	if c.Sync.PageSize < 0 {
		return fmt.Errorf("core: sync.page_size must not be negative")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("core: sync.interval must be positive")
	}
	if c.Sync.LeaseTTL <= 0 {
		return fmt.Errorf("core: sync.lease_ttl must be positive")
	}
	if c.Shopify.RequestsPerSecond < 0 || c.Shopify.Burst < 0 {
		return fmt.Errorf("core: shopify rate limit values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "postgres", "sqlite3", "sqlite":
	default:
		return fmt.Errorf("core: database.driver %q is not supported", c.Database.Driver)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("core: worker.max_attempts must be at least 1")
	}
	return nil
}

// ClampPageSize applies the configured default and upper bound to a requested
// page size.
func (c SyncConfig) ClampPageSize(requested int) int {
	maxSize := c.MaxPageSize
	if maxSize < 1 {
		maxSize = 100
	}
	if requested <= 0 {
		requested = c.PageSize
	}
	if requested <= 0 {
		requested = 50
	}
	if requested > maxSize {
		return maxSize
	}
	return requested
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "sqlite" {
		return "sqlite3"
	}
	return driver
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	return "catalog-sync"
}
