package sdk

import (
	"context"
	"strings"
	"sync"

	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
)

// Registry tracks live clients by API key and enforces that at most one
// exists per key at a time. The registry owns the lifecycle of the clients
// it creates: Delete is the path that shuts a client down.
type Registry struct {
	base   zerolog.Logger
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry. Clients built through Create
// inherit the given logger.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		base:    logger,
		logger:  logger.With().Str("component", "Registry").Logger(),
		clients: make(map[string]*Client),
	}
}

// Create builds a client from cfg and registers it under its API key. The
// check and the insert are one atomic step: of two concurrent Create calls
// for the same key, exactly one wins and the other fails with a duplicate
// instance error.
func (r *Registry) Create(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "config cannot be nil")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, weather.NewError(weather.CodeAPIKeyInvalid, "API key must not be empty")
	}

	// Client construction does no network I/O, so holding the lock across
	// it keeps check-construct-insert atomic without blocking on the world.
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[key]; exists {
		return nil, weather.NewError(weather.CodeDuplicateInstance, "a live client already exists for this API key")
	}
	client, err := New(cfg, r.base)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	r.logger.Info().Str("mode", string(client.cfg.Mode)).Msg("Registered new weather client.")
	return client, nil
}

// Get returns the live client for an API key, or false when none exists.
func (r *Registry) Get(apiKey string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[strings.TrimSpace(apiKey)]
	return client, ok
}

// Delete removes the client for an API key and shuts it down. Deleting an
// unknown key is a no-op. The shutdown runs outside the registry lock, so a
// slow stop never blocks Create or Get for other keys.
func (r *Registry) Delete(ctx context.Context, apiKey string) error {
	key := strings.TrimSpace(apiKey)

	r.mu.Lock()
	client, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.logger.Info().Msg("Deleting weather client.")
	return client.Shutdown(ctx)
}
