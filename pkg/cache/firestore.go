package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds the settings for a FirestoreStore.
type FirestoreConfig struct {
	// CollectionName is the collection holding one document per city.
	CollectionName string
	TTL            time.Duration
}

// firestoreEntry is the document stored per city. Firestore has no native
// expiry for this layout, so the fetch timestamp travels with the value and
// the TTL check happens on read.
type firestoreEntry[V any] struct {
	Value     V         `firestore:"value"`
	FetchedAt time.Time `firestore:"fetchedAt"`
}

// FirestoreStore is a Store backed by a Firestore collection, for low-volume
// deployments that want cached weather to survive restarts. Don't use it for
// high-volume caching, that's what the Redis store is for.
type FirestoreStore[V any] struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	logger     zerolog.Logger
}

// NewFirestoreStore creates a store over an externally managed client.
func NewFirestoreStore[V any](cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore[V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "firestore collection name must not be empty")
	}
	if cfg.TTL <= 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "cache TTL must be positive, got %s", cfg.TTL)
	}
	return &FirestoreStore[V]{
		client:     client,
		collection: cfg.CollectionName,
		ttl:        cfg.TTL,
		logger:     logger.With().Str("component", "FirestoreStore").Str("collection", cfg.CollectionName).Logger(),
	}, nil
}

// GetIfFresh reads the document for city and applies the TTL client-side.
// A stale document is deleted before reporting a miss.
func (s *FirestoreStore[V]) GetIfFresh(ctx context.Context, city string) (V, bool, error) {
	var zero V
	key := weather.NormalizeCity(city)

	snap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var entry firestoreEntry[V]
	if err := snap.DataTo(&entry); err != nil {
		return zero, false, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}

	if time.Since(entry.FetchedAt) > s.ttl {
		if _, err := s.client.Collection(s.collection).Doc(key).Delete(ctx); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete expired document.")
		}
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// Put writes the document for city with a fresh timestamp.
func (s *FirestoreStore[V]) Put(ctx context.Context, city string, value V) error {
	key := weather.NormalizeCity(city)
	_, err := s.client.Collection(s.collection).Doc(key).Set(ctx, firestoreEntry[V]{
		Value:     value,
		FetchedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes the document for city. Firestore deletes are no-ops
// for absent documents.
func (s *FirestoreStore[V]) Invalidate(ctx context.Context, city string) error {
	key := weather.NormalizeCity(city)
	if _, err := s.client.Collection(s.collection).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete for %s: %w", key, err)
	}
	return nil
}

// Clear deletes every document in the collection.
func (s *FirestoreStore[V]) Clear(ctx context.Context) error {
	refs := s.client.Collection(s.collection).DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore list during clear: %w", err)
		}
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete %s during clear: %w", ref.ID, err)
		}
	}
}

// Keys lists the document IDs in the collection. Order is unspecified for
// this backend, and documents past their TTL are still listed until read.
func (s *FirestoreStore[V]) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	refs := s.client.Collection(s.collection).DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list keys: %w", err)
		}
		keys = append(keys, ref.ID)
	}
}

// Close is a no-op; the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore[V]) Close() error {
	return nil
}
