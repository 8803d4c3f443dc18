package weather

import (
	"encoding/json"
	"math"
)

// providerPayload mirrors the fields of the provider's current-weather
// response that the SDK consumes. Pointer fields distinguish "absent" from
// zero so the decoder can substitute documented defaults.
type providerPayload struct {
	Weather []struct {
		Main        *string `json:"main"`
		Description *string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
	} `json:"main"`
	Visibility *int `json:"visibility"`
	Wind       *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Dt  *int64 `json:"dt"`
	Sys *struct {
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
	Timezone *int    `json:"timezone"`
	Name     *string `json:"name"`
}

// DecodeReport turns a successful provider response body into a Report.
//
// The decoder is deliberately lenient: a missing field never fails the
// decode. Missing strings default to "", missing temperatures and wind
// speed to NaN, and the remaining numeric fields to zero. Only a body that
// is not valid JSON is an error.
func DecodeReport(body []byte) (Report, error) {
	var p providerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Report{}, WrapError(CodeUnexpectedResponse, err, "undecodable provider response")
	}

	r := Report{
		Temperature:    Temperature{Temp: math.NaN(), FeelsLike: math.NaN()},
		Wind:           Wind{Speed: math.NaN()},
		Visibility:     intOr(p.Visibility, 0),
		ObservedAt:     int64Or(p.Dt, 0),
		TimezoneOffset: intOr(p.Timezone, 0),
		City:           stringOr(p.Name, ""),
	}
	if len(p.Weather) > 0 {
		r.Conditions.Main = stringOr(p.Weather[0].Main, "")
		r.Conditions.Description = stringOr(p.Weather[0].Description, "")
	}
	if p.Main != nil {
		r.Temperature.Temp = floatOr(p.Main.Temp, math.NaN())
		r.Temperature.FeelsLike = floatOr(p.Main.FeelsLike, math.NaN())
	}
	if p.Wind != nil {
		r.Wind.Speed = floatOr(p.Wind.Speed, math.NaN())
	}
	if p.Sys != nil {
		r.Sun.Sunrise = int64Or(p.Sys.Sunrise, 0)
		r.Sun.Sunset = int64Or(p.Sys.Sunset, 0)
	}
	return r, nil
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func int64Or(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}
