package sdk

import (
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/archive"
	"github.com/illmade-knight/go-openweather/pkg/cache"
	"github.com/illmade-knight/go-openweather/pkg/openweather"
	"github.com/illmade-knight/go-openweather/pkg/poll"
	"github.com/illmade-knight/go-openweather/pkg/updates"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog/log"
)

// Mode selects how a client keeps its cache populated.
type Mode string

const (
	// ModeOnDemand fetches lazily: only a lookup that misses the cache
	// touches the provider.
	ModeOnDemand Mode = "on-demand"
	// ModePolling additionally runs a background loop refreshing every
	// cached city on a fixed interval.
	ModePolling Mode = "polling"
)

func (m Mode) valid() bool {
	return m == ModeOnDemand || m == ModePolling
}

// Cache defaults.
const (
	DefaultCacheCapacity = 10
	DefaultCacheTTL      = 10 * time.Minute
)

// Env constants for overriding client settings.
const (
	EnvMode                = "OPENWEATHER_MODE"
	EnvCacheCapacity       = "OPENWEATHER_CACHE_CAPACITY"
	EnvCacheTTLMinutes     = "OPENWEATHER_CACHE_TTL_MINUTES"
	EnvPollIntervalSeconds = "OPENWEATHER_POLL_INTERVAL_SECONDS"
)

// Config holds everything a Client needs. Only APIKey is required; zero
// values elsewhere take the documented defaults.
type Config struct {
	// APIKey authenticates every request to the weather provider. It is
	// also the identity a Registry keys client instances by.
	APIKey string
	// Mode selects lazy on-demand fetching or background polling.
	// Defaults to ModeOnDemand.
	Mode Mode

	// CacheCapacity bounds how many cities the cache holds.
	CacheCapacity int
	// CacheTTL is how long a cached report stays servable.
	CacheTTL time.Duration
	// PollInterval is how often the polling mode refreshes the cache.
	PollInterval time.Duration

	// Fetch overrides the provider fetch settings (base URL, timeout,
	// retry budget, backoff). Its APIKey field is ignored in favour of
	// APIKey above.
	Fetch *openweather.ClientConfig

	// Fetcher replaces the default provider client, e.g. with a test
	// double. When set, Fetch is ignored.
	Fetcher Fetcher
	// Store replaces the default in-memory cache, e.g. with the Redis or
	// Firestore store. The client takes ownership and closes it during
	// Shutdown.
	Store cache.Store[weather.Report]
	// Publisher, when set in polling mode, receives an update for every
	// successful background refresh. The client takes ownership and stops
	// it during Shutdown.
	Publisher updates.Publisher
	// Archiver, when set in polling mode, records every successful
	// background refresh. The client takes ownership and stops it during
	// Shutdown.
	Archiver *archive.Archiver
}

// LoadConfigDefaults returns a config populated with the documented
// defaults: on-demand lookups, ten cached cities for ten minutes.
func LoadConfigDefaults(apiKey string) *Config {
	return &Config{
		APIKey:        apiKey,
		Mode:          ModeOnDemand,
		CacheCapacity: DefaultCacheCapacity,
		CacheTTL:      DefaultCacheTTL,
		PollInterval:  poll.DefaultInterval,
		Fetch:         openweather.LoadClientConfigDefaults(apiKey),
	}
}

// LoadConfigWithEnv loads client configuration from environment variables,
// falling back to the documented defaults for anything unset or unparsable.
// The fetch settings come from openweather.LoadClientConfigWithEnv.
func LoadConfigWithEnv() *Config {
	fetch := openweather.LoadClientConfigWithEnv()
	cfg := LoadConfigDefaults(fetch.APIKey)
	cfg.Fetch = fetch

	if mode := os.Getenv(EnvMode); mode != "" {
		if m := Mode(mode); m.valid() {
			cfg.Mode = m
		} else {
			log.Printf("sdk: unknown mode %q, using default", mode)
		}
	}
	if capacity := os.Getenv(EnvCacheCapacity); capacity != "" {
		n, err := strconv.Atoi(capacity)
		if err == nil {
			cfg.CacheCapacity = n
		} else {
			log.Printf("sdk: error parsing cache capacity: %s, using default", err)
		}
	}
	if ttl := os.Getenv(EnvCacheTTLMinutes); ttl != "" {
		d, err := time.ParseDuration(ttl + "m")
		if err == nil {
			cfg.CacheTTL = d
		} else {
			log.Printf("sdk: error parsing cache TTL minutes: %s, using default", err)
		}
	}
	if pi := os.Getenv(EnvPollIntervalSeconds); pi != "" {
		d, err := time.ParseDuration(pi + "s")
		if err == nil {
			cfg.PollInterval = d
		} else {
			log.Printf("sdk: error parsing poll interval seconds: %s, using default", err)
		}
	}
	return cfg
}
