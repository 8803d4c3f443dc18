// Package cache provides the bounded, time-expiring store that sits between
// synchronous lookups and the background refresh loop. The in-memory store
// is the default; Redis and Firestore backends implement the same interface
// for deployments that share or persist cached weather.
package cache

import "context"

// Store is a TTL cache of values keyed by city name. Keys are
// case-insensitive: implementations normalize them before use.
//
// All operations are safe for concurrent use. A value returned by GetIfFresh
// is always younger than the store's TTL.
type Store[V any] interface {
	// GetIfFresh returns the cached value for city and marks it recently
	// used. It reports false when the city is absent or its entry has
	// expired; an expired entry is removed as a side effect.
	GetIfFresh(ctx context.Context, city string) (V, bool, error)

	// Put inserts or overwrites the value for city with a fresh timestamp.
	Put(ctx context.Context, city string, value V) error

	// Invalidate removes the entry for city. Absent cities are a no-op.
	Invalidate(ctx context.Context, city string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Keys returns a point-in-time snapshot of the cached city keys, safe
	// to iterate while the store keeps mutating.
	Keys(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
