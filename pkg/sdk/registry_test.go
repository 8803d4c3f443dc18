package sdk_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/sdk"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	// Arrange
	registry := sdk.NewRegistry(zerolog.Nop())

	// Act
	created, err := registry.Create(&sdk.Config{APIKey: "key-a", Fetcher: &mockFetcher{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Delete(context.Background(), "key-a") })

	// Assert
	got, ok := registry.Get("key-a")
	require.True(t, ok)
	assert.Same(t, created, got)

	_, ok = registry.Get("key-b")
	assert.False(t, ok)
}

func TestRegistry_SecondCreateForSameKeyFails(t *testing.T) {
	// Arrange
	registry := sdk.NewRegistry(zerolog.Nop())
	_, err := registry.Create(&sdk.Config{APIKey: "key-a", Fetcher: &mockFetcher{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Delete(context.Background(), "key-a") })

	// Act
	_, err = registry.Create(&sdk.Config{APIKey: "key-a", Fetcher: &mockFetcher{}})

	// Assert
	require.Error(t, err)
	assert.True(t, weather.IsCode(err, weather.CodeDuplicateInstance))
}

func TestRegistry_ConcurrentCreateOneWins(t *testing.T) {
	// Arrange
	registry := sdk.NewRegistry(zerolog.Nop())
	t.Cleanup(func() { _ = registry.Delete(context.Background(), "shared-key") })

	var successes, duplicates atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup

	// Act: two racing creates for one key.
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := registry.Create(&sdk.Config{APIKey: "shared-key", Fetcher: &mockFetcher{}})
			switch {
			case err == nil:
				successes.Add(1)
			case weather.IsCode(err, weather.CodeDuplicateInstance):
				duplicates.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), duplicates.Load())
}

func TestRegistry_DeleteThenCreateSucceeds(t *testing.T) {
	// Arrange
	registry := sdk.NewRegistry(zerolog.Nop())
	_, err := registry.Create(&sdk.Config{APIKey: "key-a", Fetcher: &mockFetcher{}})
	require.NoError(t, err)

	// Act
	require.NoError(t, registry.Delete(context.Background(), "key-a"))

	// Assert
	_, ok := registry.Get("key-a")
	assert.False(t, ok)

	recreated, err := registry.Create(&sdk.Config{APIKey: "key-a", Fetcher: &mockFetcher{}})
	require.NoError(t, err)
	require.NotNil(t, recreated)
	t.Cleanup(func() { _ = registry.Delete(context.Background(), "key-a") })
}

func TestRegistry_DeleteUnknownKeyIsANoOp(t *testing.T) {
	registry := sdk.NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Delete(context.Background(), "never-created"))
}

func TestRegistry_DeleteShutsTheClientDown(t *testing.T) {
	// Arrange: a polling client kept busy by a short interval.
	registry := sdk.NewRegistry(zerolog.Nop())
	fetcher := &mockFetcher{}
	client, err := registry.Create(&sdk.Config{
		APIKey:       "key-a",
		Mode:         sdk.ModePolling,
		PollInterval: 20 * time.Millisecond,
		Fetcher:      fetcher,
	})
	require.NoError(t, err)

	_, err = client.Weather(context.Background(), "london")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fetcher.callCount() >= 2 }, time.Second, 10*time.Millisecond)

	// Act
	require.NoError(t, registry.Delete(context.Background(), "key-a"))

	// Assert
	snapshot := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, snapshot, fetcher.callCount(), "no refresh may run after Delete returns")
}
