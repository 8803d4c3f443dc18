// Package archive records every successful background refresh as a flat
// observation row, batching writes into BigQuery for analysis or into
// compressed GCS objects for cold storage.
package archive

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-openweather/pkg/weather"
)

// Observation is one archived weather reading, flattened so both columnar
// and JSONL sinks can store it without transformation. Measurements the
// provider omitted are nil and archive as NULL.
type Observation struct {
	ID          string    `bigquery:"id" json:"id"`
	City        string    `bigquery:"city" json:"city"`
	Main        string    `bigquery:"main" json:"main"`
	Description string    `bigquery:"description" json:"description"`
	TempC       *float64  `bigquery:"temp_c" json:"temp_c"`
	FeelsLikeC  *float64  `bigquery:"feels_like_c" json:"feels_like_c"`
	WindSpeed   *float64  `bigquery:"wind_speed" json:"wind_speed"`
	VisibilityM int       `bigquery:"visibility_m" json:"visibility_m"`
	ObservedAt  int64     `bigquery:"observed_at" json:"observed_at"`
	FetchedAt   time.Time `bigquery:"fetched_at" json:"fetched_at"`
}

// NewObservation flattens a refresh update into an archivable row. An update
// without an ID gets a fresh one.
func NewObservation(u weather.Update) *Observation {
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Observation{
		ID:          id,
		City:        u.City,
		Main:        u.Report.Conditions.Main,
		Description: u.Report.Conditions.Description,
		TempC:       measurement(u.Report.Temperature.Temp),
		FeelsLikeC:  measurement(u.Report.Temperature.FeelsLike),
		WindSpeed:   measurement(u.Report.Wind.Speed),
		VisibilityM: u.Report.Visibility,
		ObservedAt:  u.Report.ObservedAt,
		FetchedAt:   u.FetchedAt,
	}
}

// measurement converts the model's NaN-means-absent convention into a
// nullable column value; neither the BigQuery inserter nor a JSON encoder
// accepts NaN.
func measurement(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Sink receives batches of observations. It abstracts the destination so the
// archiver can feed BigQuery, GCS, or a test double.
type Sink interface {
	InsertBatch(ctx context.Context, rows []*Observation) error
	// Close handles any cleanup of the sink's resources.
	Close() error
}
