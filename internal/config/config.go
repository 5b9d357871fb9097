// Package config loads the optional YAML configuration file. Every field
// has a compiled default, so running without a file is fully supported.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// Config is the full runtime configuration.
type Config struct {
	Providers  map[string]Provider `yaml:"providers"`
	Federation Federation          `yaml:"federation"`
	Cache      Cache               `yaml:"cache"`
	HTTP       HTTP                `yaml:"http"`
	Monitor    Monitor             `yaml:"monitor"`
	Reports    Reports             `yaml:"reports"`
}

// Provider overrides one upstream adapter's wiring. Zero values defer to
// the adapter's compiled defaults.
type Provider struct {
	Disabled  bool    `yaml:"disabled"`
	BaseURL   string  `yaml:"base_url"`
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	TimeoutMS int     `yaml:"timeout_ms"`
}

// Federation orders the provider chain for auto-source queries.
type Federation struct {
	Order []string `yaml:"order"`
}

// Cache overrides per-intent entry lifetimes.
type Cache struct {
	TTLSecs map[string]int `yaml:"ttl_secs"`
}

// HTTP tunes the shared outbound client.
type HTTP struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

// Monitor configures the read-only status server.
type Monitor struct {
	Addr string `yaml:"addr"`
}

// Reports sets where workflow artifacts land.
type Reports struct {
	Root string `yaml:"root"`
}

// DefaultOrder is the provider chain used when the file sets none.
func DefaultOrder() []string {
	return []string{"yahoo", "finnhub", "fmp", "alphavantage", "polygon", "quartr", "secedgar", "quiver"}
}

// Default returns the compiled configuration.
func Default() *Config {
	return &Config{
		Providers:  map[string]Provider{},
		Federation: Federation{Order: DefaultOrder()},
		Cache:      Cache{TTLSecs: map[string]int{}},
		HTTP:       HTTP{TimeoutMS: 12000},
		Monitor:    Monitor{Addr: "127.0.0.1:8090"},
		Reports:    Reports{Root: "reports"},
	}
}

// Load reads and validates the YAML file at path, layering it over the
// compiled defaults. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Providers == nil {
		c.Providers = map[string]Provider{}
	}
	if len(c.Federation.Order) == 0 {
		c.Federation.Order = d.Federation.Order
	}
	if c.Cache.TTLSecs == nil {
		c.Cache.TTLSecs = map[string]int{}
	}
	if c.HTTP.TimeoutMS == 0 {
		c.HTTP.TimeoutMS = d.HTTP.TimeoutMS
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = d.Monitor.Addr
	}
	if c.Reports.Root == "" {
		c.Reports.Root = d.Reports.Root
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}
	for intent, secs := range c.Cache.TTLSecs {
		if !finance.Intent(intent).Valid() {
			return fmt.Errorf("cache ttl_secs: unknown intent %q", intent)
		}
		if secs <= 0 {
			return fmt.Errorf("cache ttl_secs: %s must be positive, got %d", intent, secs)
		}
	}
	if c.HTTP.TimeoutMS <= 0 {
		return fmt.Errorf("http timeout_ms must be positive, got %d", c.HTTP.TimeoutMS)
	}
	if c.Monitor.Addr == "" {
		return fmt.Errorf("monitor addr cannot be empty")
	}
	if c.Reports.Root == "" {
		return fmt.Errorf("reports root cannot be empty")
	}
	return nil
}

// Validate checks one provider override.
func (p Provider) Validate() error {
	if p.RPS < 0 {
		return fmt.Errorf("rps cannot be negative, got %v", p.RPS)
	}
	if p.Burst < 0 {
		return fmt.Errorf("burst cannot be negative, got %d", p.Burst)
	}
	if p.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms cannot be negative, got %d", p.TimeoutMS)
	}
	return nil
}

// ProviderFor returns the override block for a provider id, zero when the
// file names none.
func (c *Config) ProviderFor(id string) Provider {
	return c.Providers[id]
}

// Timeout returns the provider's request timeout, falling back to the
// shared HTTP timeout.
func (p Provider) Timeout(fallback time.Duration) time.Duration {
	if p.TimeoutMS <= 0 {
		return fallback
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// HTTPTimeout returns the shared outbound timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutMS) * time.Millisecond
}

// CacheTTLs merges the file's per-intent overrides over the compiled
// defaults.
func (c *Config) CacheTTLs(defaults map[finance.Intent]time.Duration) map[finance.Intent]time.Duration {
	ttls := make(map[finance.Intent]time.Duration, len(defaults))
	for intent, ttl := range defaults {
		ttls[intent] = ttl
	}
	for intent, secs := range c.Cache.TTLSecs {
		ttls[finance.Intent(intent)] = time.Duration(secs) * time.Second
	}
	return ttls
}
