package station

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/wxrelay/internal/report"
)

// Measurement names of the live-value store. Temperature is in °C, humidity
// in %, pressure in hPa, wind angle in degrees, wind and gust in km/h and
// rain in mm.
const (
	MeasureTemperature  = "measure_temperature"
	MeasureHumidity     = "measure_humidity"
	MeasurePressure     = "measure_pressure"
	MeasureWindAngle    = "measure_wind_angle"
	MeasureWindStrength = "measure_wind_strength"
	MeasureGustStrength = "measure_gust_strength"
	MeasureRain         = "measure_rain"
	MeasureRainLastHour = "measure_rain.1h"
	MeasureRain24Hours  = "measure_rain.24h"
	MeasureRainToday    = "measure_rain.today"
)

// LiveValues holds the latest reading of each measurement. A missing name
// means no data.
type LiveValues struct {
	values map[string]float64
}

func NewLiveValues() *LiveValues {
	return &LiveValues{values: make(map[string]float64)}
}

func (l *LiveValues) Set(name string, v float64) {
	l.values[name] = v
}

func (l *LiveValues) Clear(name string) {
	delete(l.values, name)
}

func (l *LiveValues) Get(name string) *float64 {
	v, ok := l.values[name]
	if !ok {
		return nil
	}
	return &v
}

// All returns a copy of every known value.
func (l *LiveValues) All() map[string]float64 {
	out := make(map[string]float64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

// Names returns the known measurement names in order.
func (l *LiveValues) Names() []string {
	names := make([]string, 0, len(l.values))
	for k := range l.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the readings used by weather reports.
func (l *LiveValues) Snapshot() report.Snapshot {
	return report.Snapshot{
		Temperature:   l.Get(MeasureTemperature),
		Humidity:      l.Get(MeasureHumidity),
		Pressure:      l.Get(MeasurePressure),
		WindDirection: l.Get(MeasureWindAngle),
		WindSpeed:     l.Get(MeasureWindStrength),
		WindGust:      l.Get(MeasureGustStrength),
	}
}

// WindToKmh converts a wind speed in units to km/h, rounded to 0.1.
func WindToKmh(v float64, units string) (float64, error) {
	var kmh float64
	switch units {
	case "km/h", "":
		kmh = v
	case "m/s":
		kmh = v * 3.6
	case "mph":
		kmh = v * 1.609344
	case "knots", "kn":
		kmh = v * 1.852
	default:
		return 0, fmt.Errorf("%w: unknown wind unit %q", ErrInvalidInput, units)
	}
	return roundTenth(kmh), nil
}

// RainToMillimeters converts a rain amount in units to mm, rounded to the
// 0.1 mm gauge resolution.
func RainToMillimeters(v float64, units string) (float64, error) {
	switch units {
	case "mm", "":
		return roundTenth(v), nil
	case "in":
		return roundTenth(v * 25.4), nil
	default:
		return 0, fmt.Errorf("%w: unknown rain unit %q", ErrInvalidInput, units)
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not a number", ErrInvalidInput, name)
	}
	return nil
}
