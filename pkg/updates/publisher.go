// Package updates fans successful background refreshes out to downstream
// consumers, so dashboards and alerting can react to new weather without
// polling the SDK themselves.
package updates

import (
	"context"

	"github.com/illmade-knight/go-openweather/pkg/weather"
)

// Publisher delivers refresh updates. Publishing failures are the
// publisher's to report; the refresh loop treats them as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, update weather.Update) error
	// Stop flushes any pending updates and accepts a context for timeout
	// control.
	Stop(ctx context.Context) error
}
