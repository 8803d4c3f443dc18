// Package openweather implements the retrying fetch path against the
// OpenWeather current-weather API: one logical fetch per call, bounded
// attempts, linear backoff between transient failures, and a mapping from
// transport and status outcomes onto the SDK's error taxonomy.
package openweather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
)

// currentWeatherPath is the provider endpoint appended to BaseURL.
const currentWeatherPath = "/data/2.5/weather"

// HTTPDoer executes a single HTTP request. *http.Client satisfies it; tests
// substitute a recording fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches current weather for a city. It retries transient failures
// and never touches any cache; composing the two is the caller's job.
//
// All methods are safe for concurrent use.
type Client struct {
	cfg    ClientConfig
	http   HTTPDoer
	logger zerolog.Logger
}

// NewClient validates the config and returns a ready client. A nil doer gets
// a default *http.Client bounded by the configured timeout. Zero-valued
// optional settings take their documented defaults.
func NewClient(cfg *ClientConfig, doer HTTPDoer, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client config cannot be nil")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, weather.NewError(weather.CodeAPIKeyInvalid, "API key must not be empty")
	}

	resolved := *cfg
	if resolved.BaseURL == "" {
		resolved.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(resolved.BaseURL); err != nil {
		return nil, weather.WrapError(weather.CodeInvalidConfiguration, err, "invalid base URL %q", resolved.BaseURL)
	}
	if resolved.Timeout == 0 {
		resolved.Timeout = DefaultTimeout
	}
	if resolved.MaxAttempts == 0 {
		resolved.MaxAttempts = DefaultMaxAttempts
	}
	if resolved.BackoffBase == 0 {
		resolved.BackoffBase = DefaultBackoffBase
	}
	if resolved.Timeout < 0 || resolved.MaxAttempts < 1 || resolved.BackoffBase < 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration,
			"timeout, max attempts and backoff base must be positive")
	}

	if doer == nil {
		doer = &http.Client{Timeout: resolved.Timeout}
	}

	return &Client{
		cfg:    resolved,
		http:   doer,
		logger: logger.With().Str("component", "OpenWeatherClient").Logger(),
	}, nil
}

// CurrentByCity fetches the current weather for a city.
//
// Status 200 decodes and returns. 401 and 403 fail immediately as an invalid
// API key, 404 as an unknown city, and any unclassified status as an
// unexpected response. Rate limiting (429), server errors (500, 502, 503,
// 504) and transport failures are transient: attempt n waits n times the
// backoff base before the next try, and exhausting the attempt budget
// surfaces the last transient failure. Cancelling the context during a
// backoff wait aborts the fetch as interrupted.
func (c *Client) CurrentByCity(ctx context.Context, city string) (weather.Report, error) {
	reqURL := c.requestURL(city)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		report, transient, err := c.attempt(ctx, reqURL, city)
		if err == nil {
			return report, nil
		}
		if !transient {
			return weather.Report{}, err
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts {
			break
		}
		delay := time.Duration(attempt) * c.cfg.BackoffBase
		c.logger.Warn().Err(err).
			Str("city", city).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient fetch failure, waiting before retry.")
		select {
		case <-ctx.Done():
			return weather.Report{}, weather.WrapError(weather.CodeInterrupted, ctx.Err(),
				"fetch for %s interrupted while waiting to retry", city)
		case <-time.After(delay):
		}
	}
	return weather.Report{}, lastErr
}

// attempt performs one network round trip. The transient flag marks
// failures worth another attempt; the error it returns alongside is already
// the one to surface if the budget runs out.
func (c *Client) attempt(ctx context.Context, reqURL, city string) (weather.Report, bool, error) {
	var zero weather.Report

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return zero, false, fmt.Errorf("build request for %s: %w", city, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, true, weather.WrapError(weather.CodeNetwork, err,
			"request for %s failed after %d attempts", city, c.cfg.MaxAttempts)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return zero, true, weather.WrapError(weather.CodeNetwork, err,
				"reading response for %s failed after %d attempts", city, c.cfg.MaxAttempts)
		}
		report, err := weather.DecodeReport(body)
		if err != nil {
			return zero, false, err
		}
		return report, false, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return zero, false, weather.NewError(weather.CodeAPIKeyInvalid,
			"provider rejected the API key (status %d)", resp.StatusCode)

	case resp.StatusCode == http.StatusNotFound:
		return zero, false, weather.NewError(weather.CodeCityNotFound, "no such city: %s", city)

	case transientStatus(resp.StatusCode):
		return zero, true, weather.NewError(weather.CodeUnavailable,
			"temporary provider error (status %d) after %d attempts", resp.StatusCode, c.cfg.MaxAttempts)

	default:
		return zero, false, weather.NewError(weather.CodeUnexpectedResponse,
			"unexpected provider response: status %d", resp.StatusCode)
	}
}

// transientStatus reports whether a provider status is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) requestURL(city string) string {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	return c.cfg.BaseURL + currentWeatherPath + "?" + q.Encode()
}
