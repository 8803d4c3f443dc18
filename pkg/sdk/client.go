// Package sdk composes the weather SDK's caller-facing surface: a provider
// client behind a bounded TTL cache, optionally kept fresh by a background
// refresh loop, and a registry enforcing one live client per API key.
package sdk

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/illmade-knight/go-openweather/pkg/cache"
	"github.com/illmade-knight/go-openweather/pkg/openweather"
	"github.com/illmade-knight/go-openweather/pkg/poll"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
)

// Fetcher is the synchronous fetch path a lookup falls back to on a cache
// miss. *openweather.Client satisfies it.
type Fetcher interface {
	CurrentByCity(ctx context.Context, city string) (weather.Report, error)
}

// Client answers "what is the weather in city X" from its cache wherever
// possible. In on-demand mode a miss triggers a synchronous fetch; polling
// mode behaves the same on a miss but also refreshes every cached city in
// the background, so repeat lookups keep hitting fresh entries.
//
// All methods are safe for concurrent use.
type Client struct {
	cfg     Config
	store   cache.Store[weather.Report]
	fetcher Fetcher
	poller  *poll.Poller
	logger  zerolog.Logger

	shutdownOnce sync.Once
}

// New validates the config and builds a ready client. Validation happens
// before any resource is created; in polling mode the refresh loop is
// already running when New returns, and Shutdown is the only way to stop it.
func New(cfg *Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "config cannot be nil")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, weather.NewError(weather.CodeAPIKeyInvalid, "API key must not be empty")
	}

	resolved := *cfg
	if resolved.Mode == "" {
		resolved.Mode = ModeOnDemand
	}
	if !resolved.Mode.valid() {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "unknown mode %q", resolved.Mode)
	}
	if resolved.CacheCapacity == 0 {
		resolved.CacheCapacity = DefaultCacheCapacity
	}
	if resolved.CacheTTL == 0 {
		resolved.CacheTTL = DefaultCacheTTL
	}
	if resolved.PollInterval == 0 {
		resolved.PollInterval = poll.DefaultInterval
	}
	if resolved.CacheCapacity < 0 || resolved.CacheTTL < 0 || resolved.PollInterval < 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration,
			"cache capacity, cache TTL and poll interval must be positive")
	}

	logger = logger.With().Str("component", "WeatherClient").Str("mode", string(resolved.Mode)).Logger()

	store := resolved.Store
	if store == nil {
		memStore, err := cache.NewMemoryStore[weather.Report](resolved.CacheCapacity, resolved.CacheTTL)
		if err != nil {
			return nil, err
		}
		store = memStore
	}

	fetcher := resolved.Fetcher
	if fetcher == nil {
		fetchCfg := resolved.Fetch
		if fetchCfg == nil {
			fetchCfg = openweather.LoadClientConfigDefaults(resolved.APIKey)
		} else {
			overridden := *fetchCfg
			overridden.APIKey = resolved.APIKey
			fetchCfg = &overridden
		}
		providerClient, err := openweather.NewClient(fetchCfg, nil, logger)
		if err != nil {
			return nil, err
		}
		fetcher = providerClient
	}

	c := &Client{
		cfg:     resolved,
		store:   store,
		fetcher: fetcher,
		logger:  logger,
	}

	if resolved.Mode == ModePolling {
		poller, err := poll.NewPoller(
			poll.Config{Interval: resolved.PollInterval},
			store,
			fetcher.CurrentByCity,
			resolved.Publisher,
			resolved.Archiver,
			logger,
		)
		if err != nil {
			return nil, err
		}
		c.poller = poller
		// The loop runs for the client's whole lifetime.
		if err := poller.Start(context.Background()); err != nil {
			return nil, err
		}
	}

	c.logger.Info().Msg("Weather client ready.")
	return c, nil
}

// Weather returns the current weather for a city. A fresh cached report is
// returned as-is; otherwise the provider is queried synchronously and the
// result cached. Fetch failures reach the caller unmodified; a lookup never
// waits on the background refresh loop.
func (c *Client) Weather(ctx context.Context, city string) (weather.Report, error) {
	if strings.TrimSpace(city) == "" {
		return weather.Report{}, errors.New("city must not be empty")
	}

	report, ok, err := c.store.GetIfFresh(ctx, city)
	if err != nil {
		// A broken cache backend must not take lookups down with it.
		c.logger.Warn().Err(err).Str("city", city).Msg("Cache read failed, treating as a miss.")
	}
	if ok {
		c.logger.Debug().Str("city", city).Msg("Cache hit.")
		return report, nil
	}

	c.logger.Debug().Str("city", city).Msg("Cache miss, fetching from provider.")
	fetched, err := c.fetcher.CurrentByCity(ctx, city)
	if err != nil {
		return weather.Report{}, err
	}
	if putErr := c.store.Put(ctx, city, fetched); putErr != nil {
		// The caller still gets the report it asked for.
		c.logger.Error().Err(putErr).Str("city", city).Msg("Failed to cache fetched report.")
	}
	return fetched, nil
}

// CachedCities returns a snapshot of the cities currently cached, least
// recently used first.
func (c *Client) CachedCities(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}

// ClearCache drops every cached report.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Shutdown stops the refresh loop, stops the owned publisher and archiver,
// and clears and closes the cache. Once the first call returns, no
// background write can land. Calling it again is a no-op.
func (c *Client) Shutdown(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.logger.Info().Msg("Shutting down weather client...")

		// The refresh loop goes first so nothing feeds the publisher or
		// archiver while they drain.
		if c.poller != nil {
			if stopErr := c.poller.Stop(ctx); stopErr != nil {
				c.logger.Error().Err(stopErr).Msg("Error stopping refresh loop.")
				err = stopErr
			}
		}
		if c.cfg.Archiver != nil {
			if stopErr := c.cfg.Archiver.Stop(ctx); stopErr != nil {
				c.logger.Error().Err(stopErr).Msg("Error stopping archiver.")
				if err == nil {
					err = stopErr
				}
			}
		}
		if c.cfg.Publisher != nil {
			if stopErr := c.cfg.Publisher.Stop(ctx); stopErr != nil {
				c.logger.Error().Err(stopErr).Msg("Error stopping update publisher.")
				if err == nil {
					err = stopErr
				}
			}
		}

		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("Error clearing cache during shutdown.")
			if err == nil {
				err = clearErr
			}
		}
		if closeErr := c.store.Close(); closeErr != nil {
			c.logger.Error().Err(closeErr).Msg("Error closing cache store.")
			if err == nil {
				err = closeErr
			}
		}
		c.logger.Info().Msg("Weather client shut down.")
	})
	return err
}
