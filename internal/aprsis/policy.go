package aprsis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultDrain is how long a burst transmission keeps the socket open after
// sending so the server can forward the report.
const DefaultDrain = 15 * time.Second

// Session is the part of Client a ReconnectPolicy drives.
type Session interface {
	Connect(ctx context.Context) error
	UserLogin() error
	SendMessage(payload string) error
	Reconnect(ctx context.Context) error
	Disconnect()
	State() State
}

// ReconnectPolicy decides when a session connects, reconnects and how a
// report reaches the server.
type ReconnectPolicy interface {
	Name() string
	// Start is called once when the station starts.
	Start(ctx context.Context, s Session) error
	// HandleEvent is called for every event the session emits, in order.
	HandleEvent(ctx context.Context, s Session, ev Event)
	// Transmit delivers one payload.
	Transmit(ctx context.Context, s Session, payload string) error
}

// Persistent keeps the session logged in and reconnects after the client's
// backoff whenever the connection is lost or a dial fails.
type Persistent struct {
	Logger *zap.SugaredLogger
}

func (p *Persistent) Name() string { return "persistent" }

func (p *Persistent) Start(ctx context.Context, s Session) error {
	err := s.Connect(ctx)
	if IsDialError(err) {
		// the error event drives the retry
		return nil
	}
	return err
}

func (p *Persistent) HandleEvent(ctx context.Context, s Session, ev Event) {
	switch ev.Type {
	case EventConnect:
		if err := s.UserLogin(); err != nil {
			p.logger().Warnf("APRS-IS login failed: %v", err)
		}
	case EventError:
		if IsDialError(ev.Err) {
			p.reconnect(ctx, s)
		}
	case EventEnd, EventClose:
		p.reconnect(ctx, s)
	}
}

func (p *Persistent) Transmit(_ context.Context, s Session, payload string) error {
	return s.SendMessage(payload)
}

func (p *Persistent) reconnect(ctx context.Context, s Session) {
	if ctx.Err() != nil {
		return
	}
	err := s.Reconnect(ctx)
	if err != nil && !errors.Is(err, ErrBusy) {
		p.logger().Warnf("unable to schedule reconnect: %v", err)
	}
}

func (p *Persistent) logger() *zap.SugaredLogger {
	if p.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return p.Logger
}

// Burst connects only to transmit: connect, login, send, drain, disconnect.
// It never schedules a reconnect.
type Burst struct {
	Drain  time.Duration
	Clock  clockwork.Clock
	Logger *zap.SugaredLogger
}

func (b *Burst) Name() string { return "burst" }

func (b *Burst) Start(context.Context, Session) error { return nil }

func (b *Burst) HandleEvent(context.Context, Session, Event) {}

func (b *Burst) Transmit(ctx context.Context, s Session, payload string) error {
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("burst connect: %w", err)
	}
	defer s.Disconnect()

	if err := s.UserLogin(); err != nil {
		return fmt.Errorf("burst login: %w", err)
	}
	if err := s.SendMessage(payload); err != nil {
		return fmt.Errorf("burst send: %w", err)
	}

	drain := b.Drain
	if drain <= 0 {
		drain = DefaultDrain
	}
	clock := b.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	select {
	case <-clock.After(drain):
	case <-ctx.Done():
	}
	return nil
}

// ReceiveOnly holds a persistent session for inbound packets and refuses to
// transmit.
type ReceiveOnly struct {
	Persistent
}

func (r *ReceiveOnly) Name() string { return "receive-only" }

func (r *ReceiveOnly) Transmit(context.Context, Session, string) error {
	return ErrReceiveOnly
}
