package openweather_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/openweather"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerPayload = `{
	"weather": [{"main": "Clouds", "description": "broken clouds"}],
	"main": {"temp": 12.3, "feels_like": 11.1},
	"visibility": 10000,
	"wind": {"speed": 4.6},
	"dt": 1700000000,
	"sys": {"sunrise": 1699990000, "sunset": 1700030000},
	"timezone": 3600,
	"name": "London"
}`

// mockDoer is a recording HTTPDoer whose behaviour is supplied per test.
type mockDoer struct {
	DoFunc func(req *http.Request) (*http.Response, error)

	mu       sync.Mutex
	callTime []time.Time
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.callTime = append(m.callTime, time.Now())
	m.mu.Unlock()
	return m.DoFunc(req)
}

func (m *mockDoer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.callTime)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// newTestClient builds a client with a fast retry schedule against the
// given doer.
func newTestClient(t *testing.T, doer openweather.HTTPDoer) *openweather.Client {
	t.Helper()
	cfg := &openweather.ClientConfig{
		APIKey:      "test-key",
		BaseURL:     "http://provider.local",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}
	client, err := openweather.NewClient(cfg, doer, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestClient_CurrentByCity_Success(t *testing.T) {
	// Arrange: a provider that checks the request shape before answering.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "New York", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		_, _ = w.Write([]byte(providerPayload))
	}))
	t.Cleanup(server.Close)

	cfg := &openweather.ClientConfig{APIKey: "test-key", BaseURL: server.URL}
	client, err := openweather.NewClient(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	// Act
	report, err := client.CurrentByCity(context.Background(), "New York")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "London", report.City)
	assert.Equal(t, "Clouds", report.Conditions.Main)
	assert.Equal(t, 12.3, report.Temperature.Temp)
	assert.Equal(t, int32(1), requests.Load(), "a success should need exactly one request")
}

func TestClient_CurrentByCity_FatalStatusesAreNotRetried(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		wantCode weather.Code
	}{
		{"Unauthorized", http.StatusUnauthorized, weather.CodeAPIKeyInvalid},
		{"Forbidden", http.StatusForbidden, weather.CodeAPIKeyInvalid},
		{"Not found", http.StatusNotFound, weather.CodeCityNotFound},
		{"Teapot is unexpected", http.StatusTeapot, weather.CodeUnexpectedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
				return httpResponse(tc.status, `{}`), nil
			}}
			client := newTestClient(t, doer)

			// Act
			_, err := client.CurrentByCity(context.Background(), "London")

			// Assert
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, weather.CodeOf(err))
			assert.Equal(t, 1, doer.calls(), "fatal statuses must not trigger a retry")
		})
	}
}

func TestClient_CurrentByCity_TransientFailuresThenSuccess(t *testing.T) {
	// Arrange: two transient failures inside a three-attempt budget.
	var attempt atomic.Int32
	doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
		switch attempt.Add(1) {
		case 1:
			return httpResponse(http.StatusInternalServerError, ""), nil
		case 2:
			return httpResponse(http.StatusServiceUnavailable, ""), nil
		default:
			return httpResponse(http.StatusOK, providerPayload), nil
		}
	}}
	client := newTestClient(t, doer)

	// Act
	report, err := client.CurrentByCity(context.Background(), "London")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "London", report.City)
	assert.Equal(t, 3, doer.calls())
}

func TestClient_CurrentByCity_RetryBudgetExhausted(t *testing.T) {
	t.Run("Server errors surface as temporarily unavailable", func(t *testing.T) {
		// Arrange
		doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
			return httpResponse(http.StatusTooManyRequests, ""), nil
		}}
		client := newTestClient(t, doer)

		// Act
		_, err := client.CurrentByCity(context.Background(), "London")

		// Assert
		require.Error(t, err)
		assert.Equal(t, weather.CodeUnavailable, weather.CodeOf(err))
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, 3, doer.calls())
	})

	t.Run("Transport errors surface as network errors", func(t *testing.T) {
		// Arrange
		doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}}
		client := newTestClient(t, doer)

		// Act
		_, err := client.CurrentByCity(context.Background(), "London")

		// Assert
		require.Error(t, err)
		assert.Equal(t, weather.CodeNetwork, weather.CodeOf(err))
		assert.Equal(t, 3, doer.calls())
	})
}

func TestClient_CurrentByCity_UndecodableSuccessBody(t *testing.T) {
	// Arrange
	doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"weather": [`), nil
	}}
	client := newTestClient(t, doer)

	// Act
	_, err := client.CurrentByCity(context.Background(), "London")

	// Assert
	require.Error(t, err)
	assert.Equal(t, weather.CodeUnexpectedResponse, weather.CodeOf(err))
	assert.Equal(t, 1, doer.calls(), "a decode failure is not retried")
}

func TestClient_CurrentByCity_InterruptedDuringBackoff(t *testing.T) {
	// Arrange: the first attempt fails transiently and the backoff wait is
	// far longer than the context deadline.
	doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusInternalServerError, ""), nil
	}}
	cfg := &openweather.ClientConfig{
		APIKey:      "test-key",
		BaseURL:     "http://provider.local",
		MaxAttempts: 3,
		BackoffBase: 10 * time.Second,
	}
	client, err := openweather.NewClient(cfg, doer, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Act
	start := time.Now()
	_, err = client.CurrentByCity(ctx, "London")

	// Assert
	require.Error(t, err)
	assert.Equal(t, weather.CodeInterrupted, weather.CodeOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, doer.calls())
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must cut the backoff short")
}

func TestClient_CurrentByCity_BackoffGrowsLinearly(t *testing.T) {
	// Arrange: every attempt fails so both backoff waits are observable.
	base := 40 * time.Millisecond
	doer := &mockDoer{DoFunc: func(_ *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusInternalServerError, ""), nil
	}}
	cfg := &openweather.ClientConfig{
		APIKey:      "test-key",
		BaseURL:     "http://provider.local",
		MaxAttempts: 3,
		BackoffBase: base,
	}
	client, err := openweather.NewClient(cfg, doer, zerolog.Nop())
	require.NoError(t, err)

	// Act
	_, err = client.CurrentByCity(context.Background(), "London")
	require.Error(t, err)

	// Assert: the wait before attempt n+1 is n times the base.
	require.Equal(t, 3, doer.calls())
	gap1 := doer.callTime[1].Sub(doer.callTime[0])
	gap2 := doer.callTime[2].Sub(doer.callTime[1])
	assert.GreaterOrEqual(t, gap1, base)
	assert.GreaterOrEqual(t, gap2, 2*base)
	assert.GreaterOrEqual(t, gap2, gap1)
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("Nil config", func(t *testing.T) {
		_, err := openweather.NewClient(nil, nil, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("Empty API key", func(t *testing.T) {
		_, err := openweather.NewClient(&openweather.ClientConfig{APIKey: "  "}, nil, zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, weather.CodeAPIKeyInvalid, weather.CodeOf(err))
	})

	t.Run("Negative attempts", func(t *testing.T) {
		_, err := openweather.NewClient(&openweather.ClientConfig{APIKey: "k", MaxAttempts: -1}, nil, zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, weather.CodeInvalidConfiguration, weather.CodeOf(err))
	})

	t.Run("Unparsable base URL", func(t *testing.T) {
		_, err := openweather.NewClient(&openweather.ClientConfig{APIKey: "k", BaseURL: "://bad"}, nil, zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, weather.CodeInvalidConfiguration, weather.CodeOf(err))
	})
}
