// Package config loads the process configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port      int    `env:"PORT" envDefault:"8080"`
	SourceDir string `env:"SOURCE_DIR" envDefault:"/data/images"`
	CacheDir  string `env:"CACHE_DIR" envDefault:"/data/cache"`

	// Fast-tier tuning. Artifacts above MemoryCacheItemLimit bytes are
	// never held in memory.
	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	MemoryCacheEntries   int           `env:"MEMORY_CACHE_ENTRIES" envDefault:"200"`
	MemoryCacheItemLimit int64         `env:"MEMORY_CACHE_ITEM_LIMIT" envDefault:"512000"`

	// Persistent-tier reclamation.
	DiskCacheBudget int64         `env:"DISK_CACHE_BUDGET" envDefault:"2147483648"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	MaxEntryAge     time.Duration `env:"MAX_ENTRY_AGE" envDefault:"720h"`

	MaxConcurrentTransforms int           `env:"MAX_TRANSFORMS" envDefault:"8"`
	ResolveTimeout          time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"30s"`

	VipsMaxCacheMB  int `env:"VIPS_MAX_CACHE_MB" envDefault:"256"`
	VipsConcurrency int `env:"VIPS_CONCURRENCY" envDefault:"1"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:""`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
