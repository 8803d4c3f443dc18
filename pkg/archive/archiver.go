package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ArchiverConfig holds the batching parameters.
type ArchiverConfig struct {
	BatchSize     int
	FlushInterval time.Duration // How often to flush a partial batch.
	InsertTimeout time.Duration // The timeout for a single sink write.
}

// Archiver collects observations and writes them to its sink in batches: on
// reaching the batch size, on the flush interval, and on shutdown.
type Archiver struct {
	cfg    ArchiverConfig
	sink   Sink
	logger zerolog.Logger
	input  chan *Observation
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewArchiver creates an archiver over the given sink. Zero config values
// take defaults (batch size 50, flush every minute, 30s insert timeout).
func NewArchiver(cfg ArchiverConfig, sink Sink, logger zerolog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 30 * time.Second
	}
	return &Archiver{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With().Str("component", "Archiver").Logger(),
		input:  make(chan *Observation, cfg.BatchSize*2),
	}
}

// Start begins the batching worker.
func (a *Archiver) Start(ctx context.Context) {
	a.logger.Info().
		Int("batch_size", a.cfg.BatchSize).
		Dur("flush_interval", a.cfg.FlushInterval).
		Msg("Starting archiver worker...")
	a.wg.Add(1)
	go a.worker(ctx)
}

// Record queues one observation for archival. Observations arriving after
// Stop are dropped with a warning rather than blocking or panicking.
func (a *Archiver) Record(obs *Observation) {
	if obs == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn().Str("city", obs.City).Msg("Archiver stopped; dropping observation.")
		return
	}
	a.input <- obs
}

// Stop drains the input channel, flushes the final batch, and closes the
// sink. It respects the context's deadline and is safe to call twice.
func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.input)
	a.mu.Unlock()

	a.logger.Info().Msg("Stopping archiver...")
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for archiver worker to stop.")
		return ctx.Err()
	}

	if err := a.sink.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Error closing archive sink.")
	}
	a.logger.Info().Msg("Archiver stopped.")
	return nil
}

// worker collects observations into a batch and flushes it on size, on the
// ticker, and on shutdown.
func (a *Archiver) worker(ctx context.Context) {
	defer a.wg.Done()
	batch := make([]*Observation, 0, a.cfg.BatchSize)
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush(context.Background(), batch)
			return

		case obs, ok := <-a.input:
			if !ok {
				// Input closed by Stop; the channel has been drained.
				a.flush(context.Background(), batch)
				return
			}
			batch = append(batch, obs)
			if len(batch) >= a.cfg.BatchSize {
				a.flush(ctx, batch)
				batch = make([]*Observation, 0, a.cfg.BatchSize)
				// Avoid an immediate follow-up flush of the fresh batch.
				ticker.Reset(a.cfg.FlushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(ctx, batch)
				batch = make([]*Observation, 0, a.cfg.BatchSize)
			}
		}
	}
}

// flush writes one batch to the sink. A failed write is logged and dropped;
// archival must never take the refresh loop down with it.
func (a *Archiver) flush(ctx context.Context, batch []*Observation) {
	if len(batch) == 0 {
		return
	}
	insertCtx, cancel := context.WithTimeout(ctx, a.cfg.InsertTimeout)
	defer cancel()

	if err := a.sink.InsertBatch(insertCtx, batch); err != nil {
		a.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to archive observation batch.")
		return
	}
	a.logger.Debug().Int("batch_size", len(batch)).Msg("Archived observation batch.")
}
