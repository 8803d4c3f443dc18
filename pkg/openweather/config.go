package openweather

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the provider client.
const (
	DefaultBaseURL     = "https://api.openweathermap.org"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
)

// Env constants for overriding client settings.
const (
	EnvAPIKey            = "OPENWEATHER_API_KEY"
	EnvBaseURL           = "OPENWEATHER_BASE_URL"
	EnvTimeoutSeconds    = "OPENWEATHER_TIMEOUT_SECONDS"
	EnvMaxAttempts       = "OPENWEATHER_MAX_ATTEMPTS"
	EnvBackoffBaseMillis = "OPENWEATHER_BACKOFF_BASE_MILLIS"
)

// ClientConfig holds the settings for the provider client.
type ClientConfig struct {
	// APIKey authenticates every request. Required.
	APIKey string
	// BaseURL is the provider origin; the client appends the
	// current-weather path. Override it to point at a test server.
	BaseURL string
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxAttempts bounds how many times one fetch hits the network.
	MaxAttempts int
	// BackoffBase is the unit of the between-attempt delay; attempt n
	// waits n times this value before the next try.
	BackoffBase time.Duration
}

// LoadClientConfigDefaults returns a config populated with the documented
// defaults for everything but the API key.
func LoadClientConfigDefaults(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:      apiKey,
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
	}
}

// LoadClientConfigWithEnv loads client configuration from environment
// variables, falling back to the documented defaults for anything unset or
// unparsable.
func LoadClientConfigWithEnv() *ClientConfig {
	cfg := LoadClientConfigDefaults(os.Getenv(EnvAPIKey))

	if base := os.Getenv(EnvBaseURL); base != "" {
		cfg.BaseURL = base
	}
	if ts := os.Getenv(EnvTimeoutSeconds); ts != "" {
		s, err := time.ParseDuration(ts + "s")
		if err == nil {
			cfg.Timeout = s
		} else {
			log.Printf("openweather: error parsing timeout seconds: %s, using default", err)
		}
	}
	if ma := os.Getenv(EnvMaxAttempts); ma != "" {
		n, err := strconv.Atoi(ma)
		if err == nil {
			cfg.MaxAttempts = n
		} else {
			log.Printf("openweather: error parsing max attempts: %s, using default", err)
		}
	}
	if bb := os.Getenv(EnvBackoffBaseMillis); bb != "" {
		d, err := time.ParseDuration(bb + "ms")
		if err == nil {
			cfg.BackoffBase = d
		} else {
			log.Printf("openweather: error parsing backoff base millis: %s, using default", err)
		}
	}
	return cfg
}
