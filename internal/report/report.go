// Package report turns a station's live readings and rain totals into an
// APRS weather report and hands it to a transmitter.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wxrelay/pkg/aprs"
)

// ErrNothingToSend is returned when every reading is unknown.
var ErrNothingToSend = errors.New("no weather data to report")

// Snapshot is a point-in-time copy of a station's live readings. Units are
// those of the live-value store: °C, %, hPa, degrees and km/h.
type Snapshot struct {
	Temperature   *float64
	Humidity      *float64
	Pressure      *float64
	WindDirection *float64
	WindSpeed     *float64
	WindGust      *float64
}

// RainTotals exposes the three rain windows. A false second value means the
// window holds no data.
type RainTotals interface {
	Rain1h() (float64, bool)
	Rain24h() (float64, bool)
	RainToday() (float64, bool)
}

// Totals is a frozen copy of RainTotals that can leave the goroutine owning
// the aggregator.
type Totals struct {
	LastHour    *float64 `json:"last_hour"`
	Last24Hours *float64 `json:"last_24_hours"`
	Today       *float64 `json:"today"`
}

// FreezeTotals copies the current values of t.
func FreezeTotals(t RainTotals) Totals {
	return Totals{
		LastHour:    optional(t.Rain1h()),
		Last24Hours: optional(t.Rain24h()),
		Today:       optional(t.RainToday()),
	}
}

func (t Totals) Rain1h() (float64, bool)    { return value(t.LastHour) }
func (t Totals) Rain24h() (float64, bool)   { return value(t.Last24Hours) }
func (t Totals) RainToday() (float64, bool) { return value(t.Today) }

func value(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Geolocation supplies the station position.
type Geolocation interface {
	Position() (lat, lon float64)
}

// FixedLocation is a Geolocation that never moves.
type FixedLocation struct {
	Latitude  float64
	Longitude float64
}

func (f FixedLocation) Position() (float64, float64) {
	return f.Latitude, f.Longitude
}

// Transmitter delivers an encoded report payload.
type Transmitter interface {
	Transmit(ctx context.Context, payload string) error
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(ctx context.Context, payload string) error

func (f TransmitterFunc) Transmit(ctx context.Context, payload string) error {
	return f(ctx, payload)
}

// Builder assembles weather reports for one station.
type Builder struct {
	Location Geolocation
	Comment  string
	// SymbolTable and SymbolCode override the weather station symbol.
	SymbolTable byte
	SymbolCode  byte
}

// Build returns the report for now, or ErrNothingToSend when there is
// nothing known to report.
func (b *Builder) Build(now time.Time, snap Snapshot, totals RainTotals) (aprs.WeatherReport, error) {
	r := aprs.WeatherReport{
		Timestamp:     now,
		SymbolTable:   b.SymbolTable,
		SymbolCode:    b.SymbolCode,
		Temperature:   snap.Temperature,
		Humidity:      snap.Humidity,
		Pressure:      snap.Pressure,
		WindDirection: snap.WindDirection,
		WindSpeed:     snap.WindSpeed,
		WindSpeedGust: snap.WindGust,
		Comment:       b.Comment,
	}
	if totals != nil {
		r.RainLastHour = optional(totals.Rain1h())
		r.RainLast24Hours = optional(totals.Rain24h())
		r.RainSinceMidnight = optional(totals.RainToday())
	}

	if allUnknown(r.Temperature, r.Humidity, r.Pressure, r.WindDirection, r.WindSpeed, r.WindSpeedGust,
		r.RainLastHour, r.RainLast24Hours, r.RainSinceMidnight) {
		return aprs.WeatherReport{}, ErrNothingToSend
	}

	if b.Location != nil {
		r.Latitude, r.Longitude = b.Location.Position()
	}
	return r, nil
}

// Transmit builds, encodes and sends one report. It returns the payload
// that was handed to tx.
func (b *Builder) Transmit(ctx context.Context, now time.Time, snap Snapshot, totals RainTotals, tx Transmitter) (string, error) {
	r, err := b.Build(now, snap, totals)
	if err != nil {
		return "", err
	}

	payload := aprs.EncodeWeatherReport(r)
	if err := tx.Transmit(ctx, payload); err != nil {
		return payload, fmt.Errorf("failed to transmit weather report: %w", err)
	}
	return payload, nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func allUnknown(values ...*float64) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}
