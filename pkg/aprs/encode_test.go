package aprs

import (
	"strings"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestEncodeWeatherReport(t *testing.T) {
	ts := time.Date(2023, 2, 25, 19, 20, 42, 0, time.UTC)

	tests := []struct {
		name   string
		report WeatherReport
		want   string
	}{
		{
			name: "temperature and hourly rain only",
			report: WeatherReport{
				Timestamp:    ts,
				Latitude:     60.1970,
				Longitude:    24.5900,
				Temperature:  ptr(20),
				RainLastHour: ptr(2.0),
				Comment:      "Homey WX-Station",
			},
			want: "@251920z6011.82N/02435.40E_.../...g...t068r008p...P...b.....h.. Homey WX-Station",
		},
		{
			name: "all fields",
			report: WeatherReport{
				Timestamp:         ts,
				Latitude:          60.1970,
				Longitude:         24.5900,
				Temperature:       ptr(-4.5),
				WindDirection:     ptr(225),
				WindSpeed:         ptr(16.09),
				WindSpeedGust:     ptr(32.18),
				Humidity:          ptr(98),
				Pressure:          ptr(994.0),
				RainLastHour:      ptr(0),
				RainLast24Hours:   ptr(1.0),
				RainSinceMidnight: ptr(1.0),
			},
			want: "@251920z6011.82N/02435.40E_225/010g020t024r000p004P004b09940h98",
		},
		{
			name: "nothing known",
			report: WeatherReport{
				Timestamp: ts,
				Latitude:  60.1970,
				Longitude: 24.5900,
			},
			want: "@251920z6011.82N/02435.40E_.../...g...t...r...p...P...b.....h..",
		},
		{
			name: "zero is not unknown",
			report: WeatherReport{
				Timestamp:     ts,
				Latitude:      60.1970,
				Longitude:     24.5900,
				WindDirection: ptr(0),
				WindSpeed:     ptr(0),
				WindSpeedGust: ptr(0),
				RainLastHour:  ptr(0),
			},
			want: "@251920z6011.82N/02435.40E_000/000g000t...r000p...P...b.....h..",
		},
		{
			name: "southern and western hemispheres",
			report: WeatherReport{
				Timestamp:   time.Date(2024, 7, 1, 3, 5, 0, 0, time.UTC),
				Latitude:    -33.8688,
				Longitude:   -70.6693,
				Temperature: ptr(-20),
			},
			want: "@010305z3352.13S/07040.16W_.../...g...t-04r...p...P...b.....h..",
		},
		{
			name: "timestamp rendered in UTC",
			report: WeatherReport{
				Timestamp: time.Date(2023, 2, 26, 1, 20, 0, 0, time.FixedZone("EET", 2*3600)),
				Latitude:  60.1970,
				Longitude: 24.5900,
			},
			want: "@252320z6011.82N/02435.40E_.../...g...t...r...p...P...b.....h..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeWeatherReport(tt.report)
			if got != tt.want {
				t.Errorf("EncodeWeatherReport()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestEncodeWeatherReportPositionBlock(t *testing.T) {
	got := EncodeWeatherReport(WeatherReport{
		Timestamp:   time.Now(),
		Latitude:    60.1970,
		Longitude:   24.5900,
		Temperature: ptr(20),
	})
	if !strings.Contains(got, "6011.82N/02435.40E_") {
		t.Errorf("position block missing from %q", got)
	}
}

func TestEncodeWeatherReportUnknownFieldsArePlaceholders(t *testing.T) {
	got := EncodeWeatherReport(WeatherReport{Latitude: 1, Longitude: 1})
	fields := got[strings.IndexByte(got, '_')+1:]

	want := ".../...g...t...r...p...P...b.....h.."
	if fields != want {
		t.Errorf("fields = %q, want %q", fields, want)
	}
	if strings.ContainsAny(fields, "0123456789") {
		t.Errorf("unknown fields must not contain digits: %q", fields)
	}
}

func TestHumidityField(t *testing.T) {
	tests := []struct {
		humidity float64
		want     string
	}{
		{100, "h00"},
		{45, "h45"},
		{5, "h05"},
		{99.6, "h00"},
		{99.4, "h99"},
		{0.4, "h01"},
		{0, "h01"},
		{-3, "h01"},
	}

	for _, tt := range tests {
		got := EncodeWeatherReport(WeatherReport{Humidity: ptr(tt.humidity)})
		if !strings.HasSuffix(got, tt.want) {
			t.Errorf("humidity %v: report %q does not end with %q", tt.humidity, got, tt.want)
		}
	}
}

func TestFieldClamping(t *testing.T) {
	got := EncodeWeatherReport(WeatherReport{RainLastHour: ptr(500), Pressure: ptr(1013.25)})
	if !strings.Contains(got, "r999") {
		t.Errorf("expected rain to clamp to r999, got %q", got)
	}
	if !strings.Contains(got, "b10133") {
		t.Errorf("expected b10133, got %q", got)
	}
}

func TestFormatCoordinates(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"latitude north", FormatLatitude(60.1970), "6011.82N"},
		{"latitude south", FormatLatitude(-33.8688), "3352.13S"},
		{"latitude single digit degrees", FormatLatitude(5.5), "0530.00N"},
		{"latitude minutes carry", FormatLatitude(10.99999), "1100.00N"},
		{"longitude east", FormatLongitude(24.5900), "02435.40E"},
		{"longitude west", FormatLongitude(-97.5), "09730.00W"},
		{"longitude east three digits", FormatLongitude(151.2093), "15112.56E"},
		{"equator", FormatLatitude(0), "0000.00N"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEncodePositionReport(t *testing.T) {
	tests := []struct {
		name   string
		report PositionReport
		want   string
	}{
		{
			name:   "defaults to house symbol",
			report: PositionReport{Latitude: 60.1970, Longitude: 24.5900},
			want:   "!6011.82N/02435.40E-",
		},
		{
			name:   "speed and heading",
			report: PositionReport{Latitude: 60.1970, Longitude: 24.5900, Speed: ptr(12.4), Heading: ptr(90), Comment: "mobile"},
			want:   "!6011.82N/02435.40E-#012090 mobile",
		},
		{
			name:   "speed without heading is omitted",
			report: PositionReport{Latitude: 60.1970, Longitude: 24.5900, Speed: ptr(12)},
			want:   "!6011.82N/02435.40E-",
		},
		{
			name:   "custom symbol",
			report: PositionReport{Latitude: 60.1970, Longitude: 24.5900, SymbolTable: '\\', SymbolCode: '>'},
			want:   "!6011.82N\\02435.40E>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodePositionReport(tt.report); got != tt.want {
				t.Errorf("EncodePositionReport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeCommands(t *testing.T) {
	if got, want := EncodeLogin("N0CALL-13", "13023", "wxrelay 1.0"), "user N0CALL-13 pass 13023 vers wxrelay 1.0"; got != want {
		t.Errorf("EncodeLogin() = %q, want %q", got, want)
	}
	if got, want := EncodeFilter("r/60.2/24.6/50"), "#filter r/60.2/24.6/50"; got != want {
		t.Errorf("EncodeFilter() = %q, want %q", got, want)
	}
	if got, want := EncodeMessage("N0CALL-13", "!6011.82N/02435.40E-"), "N0CALL-13>APHMEY,TCPIP*:!6011.82N/02435.40E-"; got != want {
		t.Errorf("EncodeMessage() = %q, want %q", got, want)
	}
}

func TestCalculatePasscode(t *testing.T) {
	tests := []struct {
		callsign string
		want     int
	}{
		{"N0CALL", 13023},
		{"n0call-9", 13023},
	}

	for _, tt := range tests {
		if got := CalculatePasscode(tt.callsign); got != tt.want {
			t.Errorf("CalculatePasscode(%q) = %d, want %d", tt.callsign, got, tt.want)
		}
	}
}
