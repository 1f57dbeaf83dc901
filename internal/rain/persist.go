package rain

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/wxrelay/internal/kvstore"
)

// Keys under which the windows are persisted.
const (
	Key1h    = "rain1h"
	Key24h   = "rain24h"
	KeyToday = "rainToday"
)

const stateVersion = 1

// Store is the subset of kvstore.Store the aggregator needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// AggregationError reports persisted state that could not be restored.
type AggregationError struct {
	Key string
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("corrupt rain state %q: %v", e.Key, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

type envelope struct {
	Version int                `msgpack:"version"`
	Kind    string             `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

type hourPayload struct {
	Events []Event  `msgpack:"events"`
	Rate   *float64 `msgpack:"rate"`
}

type dayPayload struct {
	Buckets [buckets]Bucket `msgpack:"buckets"`
}

type todayPayload struct {
	Total float64 `msgpack:"total"`
	Date  string  `msgpack:"date"`
}

func encodeBlob(kind string, payload interface{}) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(envelope{Version: stateVersion, Kind: kind, Payload: raw})
}

func decodeBlob(kind string, blob []byte, payload interface{}) error {
	var env envelope
	if err := msgpack.Unmarshal(blob, &env); err != nil {
		return &AggregationError{Key: kind, Err: err}
	}
	if env.Version != stateVersion {
		return &AggregationError{Key: kind, Err: fmt.Errorf("unsupported version %d", env.Version)}
	}
	if env.Kind != kind {
		return &AggregationError{Key: kind, Err: fmt.Errorf("unexpected kind %q", env.Kind)}
	}
	if err := msgpack.Unmarshal(env.Payload, payload); err != nil {
		return &AggregationError{Key: kind, Err: err}
	}
	return nil
}

func (a *Aggregator) save(ctx context.Context, s State) error {
	if a.store == nil {
		return nil
	}

	blobs := []struct {
		key     string
		payload interface{}
	}{
		{Key1h, hourPayload{Events: s.RollingLog, Rate: s.Rate}},
		{Key24h, dayPayload{Buckets: s.HourBuckets}},
		{KeyToday, todayPayload{Total: s.DailyTotal, Date: s.DailyDate}},
	}
	for _, b := range blobs {
		blob, err := encodeBlob(b.key, b.payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", b.key, err)
		}
		if err := a.store.Set(ctx, b.key, blob); err != nil {
			return fmt.Errorf("failed to save %s: %w", b.key, err)
		}
	}
	return nil
}

// Load restores the persisted windows. Missing keys leave their window empty.
// Corrupt state is logged and the aggregator starts empty; only store
// failures are returned.
func (a *Aggregator) Load(ctx context.Context) error {
	a.state = State{}
	if a.store == nil {
		return nil
	}

	var (
		hour  hourPayload
		day   dayPayload
		today todayPayload
	)
	targets := []struct {
		key     string
		payload interface{}
	}{
		{Key1h, &hour},
		{Key24h, &day},
		{KeyToday, &today},
	}
	for _, t := range targets {
		blob, err := a.store.Get(ctx, t.key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", t.key, err)
		}
		if err := decodeBlob(t.key, blob, t.payload); err != nil {
			a.logger.Warnf("discarding rain state: %v", err)
			return nil
		}
	}

	for i := range hour.Events {
		hour.Events[i].Timestamp = hour.Events[i].Timestamp.UTC()
	}
	for i := range day.Buckets {
		if !day.Buckets[i].Hour.IsZero() {
			day.Buckets[i].Hour = day.Buckets[i].Hour.UTC()
		}
	}
	a.state = State{
		RollingLog:  hour.Events,
		HourBuckets: day.Buckets,
		DailyTotal:  today.Total,
		DailyDate:   today.Date,
		Rate:        hour.Rate,
	}
	a.logger.Infof("restored rain state: %d events in the last hour, daily total %.1f mm (%s)",
		len(a.state.RollingLog), a.state.DailyTotal, a.state.DailyDate)
	return nil
}
