// Package config loads pipeline configuration from a YAML file plus CPIPE_*
// environment variables. Invocation-time overrides (limit, TTL, key mode, ...)
// are applied by the caller on top of the loaded values.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ProviderOrder is the canonical provider sequence. Merge consumes batches in
// this order so pair-mode tie-breaks are reproducible across runs.
var ProviderOrder = []string{"shopify", "amazon", "ebay", "mock"}

// Config is the full pipeline configuration.
type Config struct {
	DataRoot  string              `mapstructure:"data_root"`
	Cache     Cache               `mapstructure:"cache"`
	Defaults  Defaults            `mapstructure:"defaults"`
	Providers map[string]Provider `mapstructure:"providers"`
	RunLog    RunLog              `mapstructure:"runlog"`
}

// Cache selects the response-cache backend and location.
type Cache struct {
	Backend string `mapstructure:"backend"` // fs | pebble
	Root    string `mapstructure:"root"`
}

// Defaults apply to any resource that does not override them.
type Defaults struct {
	Limit    int           `mapstructure:"limit"`
	MaxPages int           `mapstructure:"max_pages"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Provider configures one data source: its pacing ceiling and resources.
type Provider struct {
	RPS       float64             `mapstructure:"rps"`
	Burst     int                 `mapstructure:"burst"`
	Resources map[string]Resource `mapstructure:"resources"`
}

// Resource configures one fetch unit of a provider.
type Resource struct {
	Limit    int      `mapstructure:"limit"`
	MaxPages int      `mapstructure:"max_pages"`
	Status   string   `mapstructure:"status"`
	Queries  []string `mapstructure:"queries"`
	ASINs    []string `mapstructure:"asins"`
}

// RunLog configures where run entries are appended.
type RunLog struct {
	Sink           string `mapstructure:"sink"` // file | kafka | both
	KafkaBootstrap string `mapstructure:"kafka_bootstrap"`
	KafkaTopic     string `mapstructure:"kafka_topic"`
}

// Resource returns the named resource with defaults filled in; ok reports
// whether the resource is configured at all.
func (p Provider) Resource(name string, d Defaults) (Resource, bool) {
	r, ok := p.Resources[name]
	if !ok {
		return Resource{}, false
	}
	if r.Limit <= 0 {
		r.Limit = d.Limit
	}
	if r.MaxPages <= 0 {
		r.MaxPages = d.MaxPages
	}
	return r, true
}

// ForceLimit caps every resource's fetch limit. Flag overrides take
// precedence over per-resource yaml values.
func (c *Config) ForceLimit(n int) {
	c.Defaults.Limit = n
	for name, p := range c.Providers {
		for rname, r := range p.Resources {
			r.Limit = n
			p.Resources[rname] = r
		}
		c.Providers[name] = p
	}
}

// Enabled returns the configured providers in canonical order, optionally
// restricted to the given subset filter.
func (c *Config) Enabled(filter []string) []string {
	allow := map[string]bool{}
	for _, f := range filter {
		allow[f] = true
	}
	var out []string
	for _, name := range ProviderOrder {
		if _, ok := c.Providers[name]; !ok {
			continue
		}
		if len(filter) > 0 && !allow[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Load reads configuration from path (or the default search locations when
// path is empty), layered under CPIPE_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pipeline")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CPIPE")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Without an explicit path a missing file is fine; env vars and
		// defaults still apply. An explicit path surfaces as a read error.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", "data")
	v.SetDefault("cache.backend", "fs")
	v.SetDefault("cache.root", ".cache/api")
	v.SetDefault("defaults.limit", 50)
	v.SetDefault("defaults.max_pages", 1)
	v.SetDefault("defaults.cache_ttl", "1h")
	v.SetDefault("runlog.sink", "file")
	v.SetDefault("runlog.kafka_topic", "cpipe.runs")
}

func validate(c *Config) error {
	switch c.Cache.Backend {
	case "fs", "pebble":
	default:
		return fmt.Errorf("cache backend must be fs or pebble, got %q", c.Cache.Backend)
	}
	switch c.RunLog.Sink {
	case "file", "kafka", "both":
	default:
		return fmt.Errorf("runlog sink must be file, kafka or both, got %q", c.RunLog.Sink)
	}
	if c.RunLog.Sink != "file" && c.RunLog.KafkaBootstrap == "" {
		return fmt.Errorf("runlog.kafka_bootstrap required for sink %q", c.RunLog.Sink)
	}
	for name, p := range c.Providers {
		if p.RPS < 0 {
			return fmt.Errorf("provider %s: rps must not be negative", name)
		}
	}
	return nil
}
