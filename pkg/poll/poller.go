// Package poll runs the background refresh loop: every cached city is
// refetched on a fixed interval so synchronous reads keep hitting fresh
// entries instead of paying for a provider round trip.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-openweather/pkg/archive"
	"github.com/illmade-knight/go-openweather/pkg/cache"
	"github.com/illmade-knight/go-openweather/pkg/updates"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often the refresh loop runs when the config leaves
// the interval unset.
const DefaultInterval = 5 * time.Minute

// FetchFunc retrieves the current weather for one city. The poller treats
// any error as a failed refresh for that city only.
type FetchFunc func(ctx context.Context, city string) (weather.Report, error)

// Config holds the refresh loop settings.
type Config struct {
	Interval time.Duration
}

// Poller periodically refetches every city present in the store. A refresh
// pass walks the cached keys in order; a city whose fetch fails keeps its
// previous entry and is retried on the next pass. Successful refreshes are
// optionally fanned out to a publisher and an archiver.
type Poller struct {
	cfg       Config
	store     cache.Store[weather.Report]
	fetch     FetchFunc
	publisher updates.Publisher
	archiver  *archive.Archiver
	logger    zerolog.Logger

	stopOnce      sync.Once
	cancelRefresh context.CancelFunc
	doneChan      chan struct{}
	wg            sync.WaitGroup
}

// NewPoller creates a refresh loop over the given store. The publisher and
// archiver may be nil; a zero interval defaults to DefaultInterval.
func NewPoller(
	cfg Config,
	store cache.Store[weather.Report],
	fetch FetchFunc,
	publisher updates.Publisher,
	archiver *archive.Archiver,
	logger zerolog.Logger,
) (*Poller, error) {
	if store == nil {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "poller requires a store")
	}
	if fetch == nil {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "poller requires a fetch function")
	}
	if cfg.Interval < 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "poll interval must not be negative, got %v", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}

	return &Poller{
		cfg:       cfg,
		store:     store,
		fetch:     fetch,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger.With().Str("component", "Poller").Logger(),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start begins the refresh loop. The first pass runs immediately; later
// passes follow the configured interval.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("Starting refresh loop...")
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRefresh = cancel
	p.wg.Add(1)
	go p.run(runCtx)
	return nil
}

// Stop halts the loop and waits for the in-flight pass to finish, so no
// refresh writes land after it returns. It is safe to call more than once.
func (p *Poller) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if p.cancelRefresh == nil {
			// Never started.
			return
		}
		p.logger.Info().Msg("Stopping refresh loop...")
		p.cancelRefresh()

		select {
		case <-p.doneChan:
			p.logger.Info().Msg("Refresh loop stopped.")
		case <-ctx.Done():
			p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for refresh loop to stop.")
			err = ctx.Err()
		}
	})
	return err
}

// Done reports when the refresh loop goroutine has exited.
func (p *Poller) Done() <-chan struct{} { return p.doneChan }

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.doneChan)

	p.refreshAll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Refresh loop shutting down.")
			return
		case <-ticker.C:
			p.refreshAll(ctx)
		}
	}
}

// refreshAll runs one pass over the cached cities.
func (p *Poller) refreshAll(ctx context.Context) {
	cities, err := p.store.Keys(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to list cached cities, skipping refresh pass.")
		return
	}
	if len(cities) == 0 {
		return
	}

	refreshed := 0
	for _, city := range cities {
		if ctx.Err() != nil {
			return
		}
		if err := p.refreshCity(ctx, city); err != nil {
			p.logger.Warn().Err(err).Str("city", city).Msg("Refresh failed, keeping the previous entry.")
			continue
		}
		refreshed++
	}
	p.logger.Debug().Int("refreshed", refreshed).Int("cached", len(cities)).Msg("Refresh pass complete.")
}

// refreshCity fetches one city and fans the result out to the store, the
// publisher, and the archiver.
func (p *Poller) refreshCity(ctx context.Context, city string) error {
	report, err := p.fetch(ctx, city)
	if err != nil {
		return err
	}

	update := weather.Update{
		ID:        uuid.NewString(),
		City:      city,
		Report:    report,
		FetchedAt: time.Now().UTC(),
	}

	if err := p.store.Put(ctx, city, report); err != nil {
		return fmt.Errorf("failed to cache refreshed report: %w", err)
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, update); err != nil {
			// Publishing is best-effort; the cache write already succeeded.
			p.logger.Warn().Err(err).Str("city", city).Msg("Failed to publish weather update.")
		}
	}
	if p.archiver != nil {
		p.archiver.Record(archive.NewObservation(update))
	}
	return nil
}
