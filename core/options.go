package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, for example
// CATALOG_SYNC_SYNC_PAGE_SIZE for sync.page_size.
const EnvPrefix = "CATALOG_SYNC_"

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

type configKey struct {
	path string
	kind valueKind
	get  func(Config) any
}

var configKeys = []configKey{
	{"service_name", kindString, func(c Config) any { return c.ServiceName }},
	{"http.addr", kindString, func(c Config) any { return c.HTTP.Addr }},
	{"webhook.path", kindString, func(c Config) any { return c.Webhook.Path }},
	{"webhook.secret", kindString, func(c Config) any { return c.Webhook.Secret }},
	{"webhook.replay_window", kindDuration, func(c Config) any { return c.Webhook.ReplayWindow }},
	{"shopify.shop_domain", kindString, func(c Config) any { return c.Shopify.ShopDomain }},
	{"shopify.access_token", kindString, func(c Config) any { return c.Shopify.AccessToken }},
	{"shopify.api_version", kindString, func(c Config) any { return c.Shopify.APIVersion }},
	{"shopify.requests_per_second", kindFloat, func(c Config) any { return c.Shopify.RequestsPerSecond }},
	{"shopify.burst", kindInt, func(c Config) any { return c.Shopify.Burst }},
	{"sync.interval", kindDuration, func(c Config) any { return c.Sync.Interval }},
	{"sync.page_size", kindInt, func(c Config) any { return c.Sync.PageSize }},
	{"sync.max_page_size", kindInt, func(c Config) any { return c.Sync.MaxPageSize }},
	{"sync.max_pages_per_run", kindInt, func(c Config) any { return c.Sync.MaxPagesPerRun }},
	{"sync.run_timeout", kindDuration, func(c Config) any { return c.Sync.RunTimeout }},
	{"sync.lease_ttl", kindDuration, func(c Config) any { return c.Sync.LeaseTTL }},
	{"sync.deleted_retention", kindDuration, func(c Config) any { return c.Sync.DeletedRetention }},
	{"sync.webhook_retention", kindDuration, func(c Config) any { return c.Sync.WebhookRetention }},
	{"sync.default_currency", kindString, func(c Config) any { return c.Sync.DefaultCurrency }},
	{"database.driver", kindString, func(c Config) any { return c.Database.Driver }},
	{"database.dsn", kindString, func(c Config) any { return c.Database.DSN }},
	{"database.debug", kindBool, func(c Config) any { return c.Database.Debug }},
	{"database.ping_timeout", kindDuration, func(c Config) any { return c.Database.PingTimeout }},
	{"worker.concurrency", kindInt, func(c Config) any { return c.Worker.Concurrency }},
	{"worker.max_attempts", kindInt, func(c Config) any { return c.Worker.MaxAttempts }},
	{"worker.requeue_after", kindDuration, func(c Config) any { return c.Worker.RequeueAfter }},
	{"cache.enabled", kindBool, func(c Config) any { return c.Cache.Enabled }},
	{"cache.ttl", kindDuration, func(c Config) any { return c.Cache.TTL }},
}

// FileConfigLoader reads a YAML document. A missing path yields no values.
type FileConfigLoader struct {
	Path string
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config file: %w", err)
	}
	return raw, nil
}

// EnvConfigLoader reads overrides for every known key from the environment.
type EnvConfigLoader struct {
	Prefix string
	Lookup func(string) (string, bool)
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	flat := map[string]any{}
	for _, key := range configKeys {
		name := prefix + strings.ToUpper(strings.ReplaceAll(key.path, ".", "_"))
		if value, ok := lookup(name); ok {
			flat[key.path] = value
		}
	}
	return unflatten(flat), nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader wraps an in-memory map, mostly for runtime overrides and tests.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// LoadConfig layers defaults under each loader in order, later loaders taking
// precedence, and builds a validated Config.
func LoadConfig(ctx context.Context, defaults Config, loaders ...RawConfigLoader) (Config, error) {
	layers := layerList(opts.NewLayer(
		opts.NewScope("defaults", 0),
		configToLayerMap(defaults),
		opts.WithSnapshotID[map[string]any]("defaults"),
	))
	for idx, loader := range loaders {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return Config{}, err
		}
		normalized, err := normalizeRaw(raw)
		if err != nil {
			return Config{}, err
		}
		name := fmt.Sprintf("layer_%d", idx+1)
		layers = append(layers, opts.NewLayer(
			opts.NewScope(name, (idx+1)*10),
			normalized,
			opts.WithSnapshotID[map[string]any](name),
		))
	}

	stack, err := opts.NewStack(layers...)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	cfg, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func layerList[L any](layers ...L) []L {
	return layers
}

func configToLayerMap(cfg Config) map[string]any {
	flat := make(map[string]any, len(configKeys))
	for _, key := range configKeys {
		flat[key.path] = key.get(cfg)
	}
	return unflatten(flat)
}

func normalizeRaw(raw map[string]any) (map[string]any, error) {
	flat := map[string]any{}
	flatten("", raw, flat)
	for _, key := range configKeys {
		value, ok := flat[key.path]
		if !ok {
			continue
		}
		coerced, err := coerceValue(key, value)
		if err != nil {
			return nil, err
		}
		flat[key.path] = coerced
	}
	return unflatten(flat), nil
}

func coerceValue(key configKey, value any) (any, error) {
	text := strings.TrimSpace(fmt.Sprint(value))
	switch key.kind {
	case kindString:
		return text, nil
	case kindInt:
		switch typed := value.(type) {
		case int:
			return typed, nil
		case int64:
			return int(typed), nil
		case float64:
			return int(typed), nil
		}
		parsed, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be an integer: %w", key.path, err)
		}
		return parsed, nil
	case kindFloat:
		switch typed := value.(type) {
		case float64:
			return typed, nil
		case int:
			return float64(typed), nil
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be a number: %w", key.path, err)
		}
		return parsed, nil
	case kindBool:
		if typed, ok := value.(bool); ok {
			return typed, nil
		}
		parsed, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be a boolean: %w", key.path, err)
		}
		return parsed, nil
	case kindDuration:
		switch typed := value.(type) {
		case time.Duration:
			return typed, nil
		case int:
			return time.Duration(typed) * time.Second, nil
		}
		parsed, err := ParseDuration(text)
		if err != nil {
			return nil, fmt.Errorf("core: %s: %w", key.path, err)
		}
		return parsed, nil
	}
	return value, nil
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		count, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(count) * 24 * time.Hour, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return parsed, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(path, nested, out)
			continue
		}
		out[path] = value
	}
}

func unflatten(flat map[string]any) map[string]any {
	out := map[string]any{}
	for path, value := range flat {
		parts := strings.Split(path, ".")
		current := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
	return out
}
