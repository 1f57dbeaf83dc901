package rain

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/internal/kvstore"
)

func newTestAggregator(t *testing.T, store Store, loc *time.Location) *Aggregator {
	t.Helper()
	return New(store, loc, zap.NewNop().Sugar())
}

func helsinki(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)
	return loc
}

func TestRollingHourEviction(t *testing.T) {
	ctx := context.Background()
	a := newTestAggregator(t, kvstore.NewMemory(), time.UTC)
	t0 := time.Date(2024, 6, 25, 10, 30, 0, 0, time.UTC)

	require.NoError(t, a.Record(ctx, 2.0, t0))

	v, ok := a.Rain1h()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	rate, ok := a.Rate()
	require.True(t, ok)
	assert.Equal(t, 2.0, rate)

	require.NoError(t, a.Purge(ctx, t0.Add(61*time.Minute)))

	_, ok = a.Rain1h()
	assert.False(t, ok, "1h total should be no data once the event is evicted")
	_, ok = a.Rate()
	assert.False(t, ok, "rate should be no data once the log empties")

	v, ok = a.Rain24h()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestRollingHourBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	a := newTestAggregator(t, nil, time.UTC)
	t0 := time.Date(2024, 6, 25, 10, 30, 0, 0, time.UTC)

	require.NoError(t, a.Record(ctx, 1.0, t0))
	require.NoError(t, a.Record(ctx, 0.5, t0.Add(10*time.Minute)))

	require.NoError(t, a.Purge(ctx, t0.Add(59*time.Minute)))
	v, ok := a.Rain1h()
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	require.NoError(t, a.Purge(ctx, t0.Add(time.Hour)))
	v, ok = a.Rain1h()
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestHourBuckets(t *testing.T) {
	ctx := context.Background()
	day1 := time.Date(2024, 6, 25, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		name    string
		purgeAt time.Time
		want    float64
		wantOK  bool
	}{
		{"same hour", day1.Add(30 * time.Minute), 3.0, true},
		{"next hour", day1.Add(time.Hour), 3.0, true},
		{"last minute of the trailing day", time.Date(2024, 6, 26, 9, 59, 0, 0, time.UTC), 3.0, true},
		{"hour slot comes round again", time.Date(2024, 6, 26, 10, 0, 0, 0, time.UTC), 0, false},
		{"two days later", time.Date(2024, 6, 27, 3, 0, 0, 0, time.UTC), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator(t, nil, time.UTC)
			require.NoError(t, a.Record(ctx, 1.0, day1))
			require.NoError(t, a.Record(ctx, 2.0, day1.Add(20*time.Minute)))

			require.NoError(t, a.Purge(ctx, tt.purgeAt))

			v, ok := a.Rain24h()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestHourBucketReplacedByNewDay(t *testing.T) {
	ctx := context.Background()
	a := newTestAggregator(t, nil, time.UTC)

	require.NoError(t, a.Record(ctx, 4.0, time.Date(2024, 6, 25, 7, 10, 0, 0, time.UTC)))
	// no purge ran in between; the stale slot must not be added to
	require.NoError(t, a.Record(ctx, 0.2, time.Date(2024, 6, 26, 7, 5, 0, 0, time.UTC)))

	s := a.State()
	assert.Equal(t, 0.2, s.HourBuckets[7].AmountMM)
	assert.True(t, s.HourBuckets[7].Hour.Equal(time.Date(2024, 6, 26, 7, 0, 0, 0, time.UTC)))
}

func TestDailyTotalResetsOnceAtLocalMidnight(t *testing.T) {
	ctx := context.Background()
	loc := helsinki(t)
	a := newTestAggregator(t, kvstore.NewMemory(), loc)

	local := func(day, hour, minute, sec int) time.Time {
		return time.Date(2024, 6, day, hour, minute, sec, 0, loc)
	}

	require.NoError(t, a.Record(ctx, 1.5, local(25, 23, 58, 0)))
	require.NoError(t, a.Purge(ctx, local(25, 23, 59, 0)))

	v, ok := a.RainToday()
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	for _, sec := range []int{0, 1, 20} {
		require.NoError(t, a.Purge(ctx, local(26, 0, 0, sec)))
		_, ok = a.RainToday()
		assert.False(t, ok, "daily total should be no data right after midnight")
	}

	require.NoError(t, a.Record(ctx, 0.5, local(26, 0, 0, 30)))
	require.NoError(t, a.Purge(ctx, local(26, 0, 0, 45)))
	require.NoError(t, a.Purge(ctx, local(26, 0, 1, 0)))

	v, ok = a.RainToday()
	require.True(t, ok)
	assert.Equal(t, 0.5, v, "daily total must not reset a second time on the same date")

	// local midnight is 21:00 UTC, so both events share the trailing day
	v, ok = a.Rain24h()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestRecordStartsNewLocalDay(t *testing.T) {
	ctx := context.Background()
	loc := helsinki(t)
	a := newTestAggregator(t, nil, loc)

	require.NoError(t, a.Record(ctx, 3.0, time.Date(2024, 1, 10, 23, 50, 0, 0, loc)))
	require.NoError(t, a.Record(ctx, 0.4, time.Date(2024, 1, 11, 0, 10, 0, 0, loc)))

	v, ok := a.RainToday()
	require.True(t, ok)
	assert.Equal(t, 0.4, v)
	assert.Equal(t, "2024-01-11", a.State().DailyDate)
}

func TestRecordRejectsInvalidAmounts(t *testing.T) {
	a := newTestAggregator(t, nil, time.UTC)
	assert.Error(t, a.Record(context.Background(), -1, time.Now()))

	_, ok := a.Rain1h()
	assert.False(t, ok)
}

func TestNothingRecordedIsNoData(t *testing.T) {
	a := newTestAggregator(t, nil, time.UTC)
	require.NoError(t, a.Purge(context.Background(), time.Now()))

	for name, get := range map[string]func() (float64, bool){
		"1h":    a.Rain1h,
		"24h":   a.Rain24h,
		"today": a.RainToday,
		"rate":  a.Rate,
	} {
		_, ok := get()
		assert.False(t, ok, name)
	}
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	loc := helsinki(t)

	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return kvstore.NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := kvstore.NewSQLite(filepath.Join(t.TempDir(), "rain.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			t0 := time.Date(2024, 6, 25, 12, 5, 0, 0, time.UTC)

			a := newTestAggregator(t, store, loc)
			require.NoError(t, a.Record(ctx, 1.2, t0))
			require.NoError(t, a.Record(ctx, 0.3, t0.Add(5*time.Minute)))

			b := newTestAggregator(t, store, loc)
			require.NoError(t, b.Load(ctx))

			for _, get := range []struct {
				name     string
				got, exp func() (float64, bool)
			}{
				{"1h", b.Rain1h, a.Rain1h},
				{"24h", b.Rain24h, a.Rain24h},
				{"today", b.RainToday, a.RainToday},
				{"rate", b.Rate, a.Rate},
			} {
				gv, gok := get.got()
				ev, eok := get.exp()
				assert.Equal(t, eok, gok, get.name)
				assert.Equal(t, ev, gv, get.name)
			}

			s := b.State()
			require.Len(t, s.RollingLog, 2)
			assert.True(t, s.RollingLog[0].Timestamp.Equal(t0))
			assert.Equal(t, "2024-06-25", s.DailyDate)

			// the restored log keeps evicting on schedule
			require.NoError(t, b.Purge(ctx, t0.Add(62*time.Minute)))
			v, ok := b.Rain1h()
			require.True(t, ok)
			assert.Equal(t, 0.3, v)
		})
	}
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	a := newTestAggregator(t, store, time.UTC)
	require.NoError(t, a.Record(ctx, 2.5, time.Date(2024, 6, 25, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, store.Set(ctx, Key24h, []byte("definitely not msgpack")))

	b := newTestAggregator(t, store, time.UTC)
	require.NoError(t, b.Load(ctx))

	_, ok := b.Rain1h()
	assert.False(t, ok)
	_, ok = b.Rain24h()
	assert.False(t, ok)
	_, ok = b.RainToday()
	assert.False(t, ok)
	assert.Empty(t, b.State().RollingLog)
}

func TestDecodeBlobRejectsMismatches(t *testing.T) {
	payload, err := msgpack.Marshal(todayPayload{Total: 1, Date: "2024-06-25"})
	require.NoError(t, err)

	tests := []struct {
		name string
		env  envelope
	}{
		{"future version", envelope{Version: stateVersion + 1, Kind: KeyToday, Payload: payload}},
		{"wrong kind", envelope{Version: stateVersion, Kind: Key1h, Payload: payload}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := msgpack.Marshal(tt.env)
			require.NoError(t, err)

			var out todayPayload
			err = decodeBlob(KeyToday, blob, &out)

			var aggErr *AggregationError
			require.True(t, errors.As(err, &aggErr))
			assert.Equal(t, KeyToday, aggErr.Key)
		})
	}
}

func TestMissingKeysLoadEmpty(t *testing.T) {
	a := newTestAggregator(t, kvstore.NewMemory(), time.UTC)
	require.NoError(t, a.Load(context.Background()))

	_, ok := a.Rain24h()
	assert.False(t, ok)
}

type flakyStore struct {
	*kvstore.Memory
	failSets int
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSets > 0 {
		s.failSets--
		return errors.New("disk full")
	}
	return s.Memory.Set(ctx, key, value)
}

func TestFailedSaveKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: kvstore.NewMemory(), failSets: 1}
	a := newTestAggregator(t, store, time.UTC)
	t0 := time.Date(2024, 6, 25, 10, 30, 0, 0, time.UTC)

	err := a.Record(ctx, 2.0, t0)
	require.ErrorContains(t, err, "disk full")

	_, ok := a.Rain1h()
	assert.False(t, ok, "a reading that failed to save must not be counted")
	_, ok = a.RainToday()
	assert.False(t, ok)

	require.NoError(t, a.Record(ctx, 2.0, t0))
	v, ok := a.Rain1h()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = a.Rain24h()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = a.RainToday()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	store.failSets = 1
	require.Error(t, a.Purge(ctx, t0.Add(2*time.Hour)))
	v, ok = a.Rain1h()
	require.True(t, ok, "a failed purge leaves the trailing hour in place")
	assert.Equal(t, 2.0, v)

	restored := newTestAggregator(t, store, time.UTC)
	require.NoError(t, restored.Load(ctx))
	v, ok = restored.RainToday()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}
