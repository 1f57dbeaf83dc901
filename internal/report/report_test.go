package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type totals struct {
	h1, h24, today     float64
	ok1, ok24, okToday bool
}

func (t totals) Rain1h() (float64, bool)    { return t.h1, t.ok1 }
func (t totals) Rain24h() (float64, bool)   { return t.h24, t.ok24 }
func (t totals) RainToday() (float64, bool) { return t.today, t.okToday }

func ptr(v float64) *float64 { return &v }

var reportTime = time.Date(2024, 6, 25, 19, 20, 0, 0, time.UTC)

func TestBuildAndTransmit(t *testing.T) {
	b := &Builder{
		Location: FixedLocation{Latitude: 60.1970, Longitude: 24.5900},
		Comment:  "Homey WX-Station",
	}

	var sent string
	tx := TransmitterFunc(func(_ context.Context, payload string) error {
		sent = payload
		return nil
	})

	payload, err := b.Transmit(context.Background(), reportTime,
		Snapshot{Temperature: ptr(20)}, totals{h1: 2.0, ok1: true}, tx)
	require.NoError(t, err)

	want := "@251920z6011.82N/02435.40E_.../...g...t068r008p...P...b.....h.. Homey WX-Station"
	assert.Equal(t, want, payload)
	assert.Equal(t, want, sent)
}

func TestBuildNothingToSend(t *testing.T) {
	b := &Builder{Location: FixedLocation{Latitude: 60, Longitude: 24}}

	called := false
	tx := TransmitterFunc(func(context.Context, string) error {
		called = true
		return nil
	})

	_, err := b.Transmit(context.Background(), reportTime, Snapshot{}, totals{}, tx)
	assert.True(t, errors.Is(err, ErrNothingToSend))
	assert.False(t, called)

	_, err = b.Build(reportTime, Snapshot{}, nil)
	assert.True(t, errors.Is(err, ErrNothingToSend))
}

func TestBuildZeroRainIsData(t *testing.T) {
	b := &Builder{}

	r, err := b.Build(reportTime, Snapshot{}, totals{okToday: true})
	require.NoError(t, err)
	require.NotNil(t, r.RainSinceMidnight)
	assert.Equal(t, 0.0, *r.RainSinceMidnight)
	assert.Nil(t, r.RainLastHour)
	assert.Nil(t, r.RainLast24Hours)
}

func TestBuildCopiesSnapshot(t *testing.T) {
	b := &Builder{Location: FixedLocation{Latitude: -33.8688, Longitude: 151.2093}, SymbolTable: '\\', SymbolCode: '_'}
	snap := Snapshot{
		Temperature:   ptr(-4),
		Humidity:      ptr(100),
		Pressure:      ptr(1013.3),
		WindDirection: ptr(225),
		WindSpeed:     ptr(16.09),
		WindGust:      ptr(32.18),
	}

	r, err := b.Build(reportTime, snap, totals{h24: 1.0, ok24: true})
	require.NoError(t, err)

	assert.Equal(t, snap.Temperature, r.Temperature)
	assert.Equal(t, snap.WindGust, r.WindSpeedGust)
	assert.Equal(t, -33.8688, r.Latitude)
	assert.Equal(t, 151.2093, r.Longitude)
	assert.Equal(t, byte('\\'), r.SymbolTable)
	assert.True(t, r.Timestamp.Equal(reportTime))
}

func TestFreezeTotals(t *testing.T) {
	frozen := FreezeTotals(totals{h1: 1.5, ok1: true, today: 0, okToday: true})

	v, ok := frozen.Rain1h()
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	_, ok = frozen.Rain24h()
	assert.False(t, ok)
	v, ok = frozen.RainToday()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestTransmitWrapsFailure(t *testing.T) {
	b := &Builder{}
	boom := errors.New("not connected")

	payload, err := b.Transmit(context.Background(), reportTime, Snapshot{Humidity: ptr(45)}, nil,
		TransmitterFunc(func(context.Context, string) error { return boom }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, payload, "h45")
}
