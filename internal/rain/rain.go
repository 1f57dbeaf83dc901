// Package rain keeps the rolling rainfall windows of a station: the trailing
// hour, the trailing day in UTC hour buckets, and the total since local
// midnight.
package rain

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	window1h = time.Hour
	buckets  = 24
)

// Event is a single rain measurement.
type Event struct {
	Timestamp time.Time `msgpack:"ts"`
	AmountMM  float64   `msgpack:"mm"`
}

// Bucket holds the rain recorded during one UTC hour. A zero Hour means the
// bucket holds no data.
type Bucket struct {
	Hour     time.Time `msgpack:"hour"`
	AmountMM float64   `msgpack:"mm"`
}

// State is the complete aggregator state. It is what gets persisted.
type State struct {
	RollingLog  []Event
	HourBuckets [buckets]Bucket
	// DailyTotal belongs to the local calendar date in DailyDate.
	// An empty DailyDate means no data since local midnight.
	DailyTotal float64
	DailyDate  string
	Rate       *float64
}

// Aggregator tracks rain totals for one station. It is not safe for
// concurrent use; the owning station serialises all calls.
type Aggregator struct {
	store  Store
	loc    *time.Location
	logger *zap.SugaredLogger
	state  State
}

// New creates an empty aggregator. loc is the station's timezone, used only
// to find local midnight.
func New(store Store, loc *time.Location, logger *zap.SugaredLogger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		store:  store,
		loc:    loc,
		logger: logger,
	}
}

// Record adds amountMM of rain measured at ts and saves the new state. The
// reading is only kept once it has been saved.
func (a *Aggregator) Record(ctx context.Context, amountMM float64, ts time.Time) error {
	if amountMM < 0 || math.IsNaN(amountMM) || math.IsInf(amountMM, 0) {
		return fmt.Errorf("invalid rain amount %v", amountMM)
	}
	ts = ts.UTC()

	next := a.State()
	next.RollingLog = append(next.RollingLog, Event{Timestamp: ts, AmountMM: amountMM})

	hour := ts.Truncate(time.Hour)
	b := &next.HourBuckets[ts.Hour()]
	switch {
	case b.Hour.Equal(hour):
		b.AmountMM += amountMM
	case b.Hour.Before(hour):
		*b = Bucket{Hour: hour, AmountMM: amountMM}
	default:
		// Older than the day this slot already holds.
		a.logger.Debugf("rain event at %v predates hour bucket %v, not bucketed", ts, b.Hour)
	}

	date := a.localDate(ts)
	switch {
	case next.DailyDate == date:
		next.DailyTotal += amountMM
	case next.DailyDate < date:
		next.DailyDate = date
		next.DailyTotal = amountMM
	}

	rate := amountMM
	next.Rate = &rate

	return a.commit(ctx, next)
}

// Purge evicts everything that has aged out of its window as of now and
// saves the new state. It is idempotent for a given now.
func (a *Aggregator) Purge(ctx context.Context, now time.Time) error {
	now = now.UTC()
	next := a.State()

	cutoff := now.Add(-window1h)
	kept := next.RollingLog[:0]
	for _, ev := range next.RollingLog {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	next.RollingLog = kept
	if len(next.RollingLog) == 0 {
		next.RollingLog = nil
		next.Rate = nil
	}

	// The slot for the current hour is cleared on entry to the hour; any
	// slot stamped before the oldest hour of the trailing day is stale.
	hour := now.Truncate(time.Hour)
	oldest := hour.Add(-(buckets - 1) * time.Hour)
	for i := range next.HourBuckets {
		b := &next.HourBuckets[i]
		if b.Hour.IsZero() {
			continue
		}
		if b.Hour.Before(oldest) || (i == now.Hour() && !b.Hour.Equal(hour)) {
			*b = Bucket{}
		}
	}

	if next.DailyDate != "" && next.DailyDate < a.localDate(now) {
		a.logger.Infof("local midnight passed, resetting daily rain total of %.1f mm for %s",
			next.DailyTotal, next.DailyDate)
		next.DailyDate = ""
		next.DailyTotal = 0
	}

	return a.commit(ctx, next)
}

// Rain1h returns the rain of the trailing hour.
func (a *Aggregator) Rain1h() (float64, bool) {
	if len(a.state.RollingLog) == 0 {
		return 0, false
	}
	var sum float64
	for _, ev := range a.state.RollingLog {
		sum += ev.AmountMM
	}
	return round1(sum), true
}

// Rain24h returns the sum of the hour buckets of the trailing day.
func (a *Aggregator) Rain24h() (float64, bool) {
	var sum float64
	ok := false
	for _, b := range a.state.HourBuckets {
		if b.Hour.IsZero() {
			continue
		}
		sum += b.AmountMM
		ok = true
	}
	return round1(sum), ok
}

// RainToday returns the rain since local midnight.
func (a *Aggregator) RainToday() (float64, bool) {
	if a.state.DailyDate == "" {
		return 0, false
	}
	return round1(a.state.DailyTotal), true
}

// Rate returns the last recorded amount while the trailing hour holds data.
func (a *Aggregator) Rate() (float64, bool) {
	if a.state.Rate == nil {
		return 0, false
	}
	return *a.state.Rate, true
}

// State returns a copy of the current state.
func (a *Aggregator) State() State {
	s := a.state
	s.RollingLog = append([]Event(nil), a.state.RollingLog...)
	if a.state.Rate != nil {
		r := *a.state.Rate
		s.Rate = &r
	}
	return s
}

// commit saves next and makes it the current state. On a failed save the
// current state is left as it was.
func (a *Aggregator) commit(ctx context.Context, next State) error {
	if err := a.save(ctx, next); err != nil {
		return err
	}
	a.state = next
	return nil
}

// Location returns the timezone used for local midnight.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

func (a *Aggregator) localDate(t time.Time) string {
	return t.In(a.loc).Format("2006-01-02")
}

// round1 rounds to the 0.1 mm resolution of the gauges, which hides float
// accumulation noise.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
