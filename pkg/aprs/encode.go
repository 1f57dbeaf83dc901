package aprs

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Default symbols: a house for position reports, the weather station for
// weather reports. Both live in the primary symbol table.
const (
	DefaultSymbolTable       = '/'
	DefaultPositionSymbol    = '-'
	DefaultWeatherSymbolCode = '_'
)

// PositionReport is a plain (uncompressed, no timestamp) position report.
type PositionReport struct {
	Latitude    float64
	Longitude   float64
	SymbolTable byte
	SymbolCode  byte
	// Speed in knots and Heading in degrees are only encoded when both are set.
	Speed   *float64
	Heading *float64
	Comment string
}

// WeatherReport is a complete weather report with position and timestamp.
// A nil reading is encoded as "unknown" and never as zero.
type WeatherReport struct {
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	SymbolTable byte
	SymbolCode  byte

	Temperature       *float64 // degrees Celsius
	WindDirection     *float64 // degrees
	WindSpeed         *float64 // km/h
	WindSpeedGust     *float64 // km/h
	Humidity          *float64 // percent
	Pressure          *float64 // hPa (mbar)
	RainLastHour      *float64 // mm
	RainLast24Hours   *float64 // mm
	RainSinceMidnight *float64 // mm

	Comment string
}

// EncodePositionReport builds the information field of a position report.
func EncodePositionReport(r PositionReport) string {
	var b strings.Builder

	b.WriteByte('!')
	b.WriteString(positionBlock(r.Latitude, r.Longitude,
		orDefault(r.SymbolTable, DefaultSymbolTable), orDefault(r.SymbolCode, DefaultPositionSymbol)))

	if r.Speed != nil && r.Heading != nil {
		fmt.Fprintf(&b, "#%03d%03d", int(math.Round(*r.Speed)), int(math.Round(*r.Heading)))
	}

	writeComment(&b, r.Comment)
	return b.String()
}

// EncodeWeatherReport builds the information field of a timestamped weather
// report, e.g. @251920z6011.82N/02435.40E_.../...g...t068r008p...P...b.....h..
func EncodeWeatherReport(r WeatherReport) string {
	var b strings.Builder

	ts := r.Timestamp.UTC()
	fmt.Fprintf(&b, "@%02d%02d%02dz", ts.Day(), ts.Hour(), ts.Minute())

	b.WriteString(positionBlock(r.Latitude, r.Longitude,
		orDefault(r.SymbolTable, DefaultSymbolTable), orDefault(r.SymbolCode, DefaultWeatherSymbolCode)))

	b.WriteString(field(r.WindDirection, 3, nil))
	b.WriteByte('/')
	b.WriteString(field(r.WindSpeed, 3, KmhToMph))
	b.WriteByte('g')
	b.WriteString(field(r.WindSpeedGust, 3, KmhToMph))
	b.WriteByte('t')
	b.WriteString(field(r.Temperature, 3, CelsiusToFahrenheit))
	b.WriteByte('r')
	b.WriteString(field(r.RainLastHour, 3, MillimetersToHundredthsInch))
	b.WriteByte('p')
	b.WriteString(field(r.RainLast24Hours, 3, MillimetersToHundredthsInch))
	b.WriteByte('P')
	b.WriteString(field(r.RainSinceMidnight, 3, MillimetersToHundredthsInch))
	b.WriteByte('b')
	b.WriteString(field(r.Pressure, 5, HectopascalToTenthsMillibar))
	b.WriteByte('h')
	b.WriteString(humidityField(r.Humidity))

	writeComment(&b, r.Comment)
	return b.String()
}

// FormatLatitude renders a latitude as DDMM.mmH.
func FormatLatitude(lat float64) string {
	hemisphere := "N"
	if lat < 0 {
		hemisphere = "S"
	}
	deg, minutes := degreesMinutes(lat)
	return fmt.Sprintf("%02d%05.2f%s", deg, minutes, hemisphere)
}

// FormatLongitude renders a longitude as DDDMM.mmH.
func FormatLongitude(lon float64) string {
	hemisphere := "E"
	if lon < 0 {
		hemisphere = "W"
	}
	deg, minutes := degreesMinutes(lon)
	return fmt.Sprintf("%03d%05.2f%s", deg, minutes, hemisphere)
}

// degreesMinutes splits an angle into whole degrees and minutes rounded to
// hundredths. Rounding up to 60.00 minutes carries into the degree.
func degreesMinutes(v float64) (int, float64) {
	hundredths := int64(math.Round(math.Abs(v) * 6000))
	return int(hundredths / 6000), float64(hundredths%6000) / 100
}

func positionBlock(lat, lon float64, table, code byte) string {
	return FormatLatitude(lat) + string(table) + FormatLongitude(lon) + string(code)
}

// Unit conversions applied before formatting.

// CelsiusToFahrenheit converts a temperature.
func CelsiusToFahrenheit(c float64) float64 { return c*1.8 + 32 }

// KmhToMph converts a wind speed.
func KmhToMph(kmh float64) float64 { return kmh / 1.609 }

// HectopascalToTenthsMillibar converts a pressure to the unit of the b field.
func HectopascalToTenthsMillibar(hpa float64) float64 { return hpa * 10 }

// MillimetersToHundredthsInch converts a rain amount to the unit of r/p/P.
func MillimetersToHundredthsInch(mm float64) float64 { return mm / 25.4 * 100 }

// field formats an optional value as a fixed-width, zero-padded integer, or as
// dots of the same width when the value is unknown.
func field(v *float64, width int, convert func(float64) float64) string {
	if v == nil {
		return strings.Repeat(".", width)
	}

	x := *v
	if convert != nil {
		x = convert(x)
	}
	n := clamp(int(math.Round(x)), width)
	return fmt.Sprintf("%0*d", width, n)
}

// humidityField encodes humidity; the two-digit field represents 100% as 00,
// so readings below 1% are sent as 01.
func humidityField(v *float64) string {
	if v == nil {
		return ".."
	}
	h := int(math.Round(*v))
	switch {
	case h >= 100:
		h = 0
	case h < 1:
		h = 1
	}
	return fmt.Sprintf("%02d", h)
}

// clamp keeps n within what a zero-padded field of width characters can carry.
// Negative values keep their sign inside the width (t-05).
func clamp(n, width int) int {
	hi := int(math.Pow10(width)) - 1
	lo := -(int(math.Pow10(width-1)) - 1)
	if n > hi {
		return hi
	}
	if n < lo {
		return lo
	}
	return n
}

func orDefault(b, def byte) byte {
	if b == 0 {
		return def
	}
	return b
}

func writeComment(b *strings.Builder, comment string) {
	if comment != "" {
		b.WriteByte(' ')
		b.WriteString(comment)
	}
}
