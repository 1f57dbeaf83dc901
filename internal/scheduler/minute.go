// Package scheduler provides ticks aligned to the top of each minute.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// MaxDrift is how late a tick may be observed before the ticker is torn down
// and aligned to the minute again.
const MaxDrift = 5 * time.Second

// MinuteTicker delivers the current time on C once per minute, close to the
// minute boundary. Like time.Ticker it drops ticks for a slow receiver.
type MinuteTicker struct {
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	c      chan time.Time
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartMinuteTicker starts a ticker that runs until Stop is called or ctx is
// done.
func StartMinuteTicker(ctx context.Context, clock clockwork.Clock, logger *zap.SugaredLogger) *MinuteTicker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &MinuteTicker{
		clock:  clock,
		logger: logger,
		c:      make(chan time.Time, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

// C returns the tick channel.
func (t *MinuteTicker) C() <-chan time.Time {
	return t.c
}

// Stop ends the ticker and waits for its goroutine. It is safe to call more
// than once.
func (t *MinuteTicker) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

func (t *MinuteTicker) run(ctx context.Context) {
	defer close(t.done)

	for {
		if !t.waitForMinute(ctx) {
			return
		}
		now := t.clock.Now()
		t.deliver(now)
		if t.drifted(now) {
			continue
		}

		if !t.tickEveryMinute(ctx) {
			return
		}
	}
}

// waitForMinute sleeps until the next minute boundary.
func (t *MinuteTicker) waitForMinute(ctx context.Context) bool {
	now := t.clock.Now()
	next := now.Truncate(time.Minute).Add(time.Minute)

	timer := t.clock.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// tickEveryMinute runs a plain one-minute ticker until it drifts. It returns
// false when ctx is done.
func (t *MinuteTicker) tickEveryMinute(ctx context.Context) bool {
	ticker := t.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.Chan():
			now := t.clock.Now()
			t.deliver(now)
			if t.drifted(now) {
				return true
			}
		}
	}
}

// TickMinute returns the minute a tick observed at now belongs to. A tick up
// to MaxDrift early counts toward the coming minute.
func TickMinute(now time.Time) time.Time {
	return now.Add(MaxDrift).Truncate(time.Minute)
}

func (t *MinuteTicker) drifted(now time.Time) bool {
	drift := now.Sub(TickMinute(now))
	if drift > MaxDrift {
		t.logger.Infof("minute tick %v late, realigning", drift)
		return true
	}
	return false
}

func (t *MinuteTicker) deliver(now time.Time) {
	select {
	case t.c <- now:
	default:
	}
}
