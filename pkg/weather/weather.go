// Package weather defines the domain model shared by every component of the
// SDK: the Report returned to callers, the Update emitted on background
// refreshes, key normalization, and the error taxonomy.
package weather

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Conditions describes the headline weather state, e.g. "Clouds" / "broken clouds".
type Conditions struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// Temperature holds metric-unit temperatures. Fields are NaN when the
// provider omitted them; the JSON encoding maps NaN to null so reports
// remain serializable.
type Temperature struct {
	Temp      float64
	FeelsLike float64
}

// Wind holds wind measurements. Speed is NaN when the provider omitted it.
type Wind struct {
	Speed float64
}

// Sun holds sunrise and sunset as unix timestamps.
type Sun struct {
	Sunrise int64 `json:"sunrise"`
	Sunset  int64 `json:"sunset"`
}

// Report is the current-weather value cached and returned by the SDK.
type Report struct {
	Conditions     Conditions  `json:"weather"`
	Temperature    Temperature `json:"temperature"`
	Visibility     int         `json:"visibility"`
	Wind           Wind        `json:"wind"`
	ObservedAt     int64       `json:"datetime"`
	Sun            Sun         `json:"sys"`
	TimezoneOffset int         `json:"timezone"`
	City           string      `json:"name"`
}

// Update is the payload published after a successful background refresh and
// recorded by the observation archiver.
type Update struct {
	ID        string    `json:"id"`
	City      string    `json:"city"`
	Report    Report    `json:"report"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NormalizeCity canonicalizes a lookup key. Two city names that differ only
// in surrounding whitespace or letter case address the same cache entry.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

type temperatureJSON struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
}

// MarshalJSON encodes NaN temperatures as null.
func (t Temperature) MarshalJSON() ([]byte, error) {
	return json.Marshal(temperatureJSON{
		Temp:      nullableFloat(t.Temp),
		FeelsLike: nullableFloat(t.FeelsLike),
	})
}

// UnmarshalJSON decodes null or absent temperatures back to NaN.
func (t *Temperature) UnmarshalJSON(b []byte) error {
	var raw temperatureJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.Temp = floatOrNaN(raw.Temp)
	t.FeelsLike = floatOrNaN(raw.FeelsLike)
	return nil
}

type windJSON struct {
	Speed *float64 `json:"speed"`
}

// MarshalJSON encodes a NaN wind speed as null.
func (w Wind) MarshalJSON() ([]byte, error) {
	return json.Marshal(windJSON{Speed: nullableFloat(w.Speed)})
}

// UnmarshalJSON decodes a null or absent wind speed back to NaN.
func (w *Wind) UnmarshalJSON(b []byte) error {
	var raw windJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	w.Speed = floatOrNaN(raw.Speed)
	return nil
}

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
