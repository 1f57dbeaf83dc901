// Package station runs one weather station: its live readings, rain
// aggregator, APRS-IS session and the minute tick that purges rain windows
// and transmits reports. All station state is owned by a single loop
// goroutine; callers reach it through methods that queue work onto the loop.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/internal/aprsis"
	"github.com/chrissnell/wxrelay/internal/metrics"
	"github.com/chrissnell/wxrelay/internal/rain"
	"github.com/chrissnell/wxrelay/internal/report"
	"github.com/chrissnell/wxrelay/internal/scheduler"
	"github.com/chrissnell/wxrelay/pkg/aprs"
)

// Kind selects how a station uses its APRS-IS connection.
type Kind string

const (
	// KindWXStation connects only to send a report.
	KindWXStation Kind = "wx-station"
	// KindMain stays logged in and sends reports over the open session.
	KindMain Kind = "main"
	// KindRemote stays connected to receive packets and never transmits.
	KindRemote Kind = "remote-station"
)

const (
	DefaultTxInterval    = 10
	DefaultPacketHistory = 50
	DefaultComment       = "wxrelay WX-Station"
)

var (
	// ErrInvalidInput marks a rejected sensor reading or setting.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStopped is returned once the station loop has exited.
	ErrStopped = errors.New("station stopped")
)

// Config describes one station.
type Config struct {
	Name      string
	Kind      Kind
	Latitude  float64
	Longitude float64
	Location  *time.Location
	// TxInterval is the report interval in minutes; 0 disables reports.
	TxInterval    int
	PurgeInterval int
	Comment       string
	SymbolTable   byte
	SymbolCode    byte
	Drain         time.Duration
	PacketHistory int
	Connection    aprsis.Config
}

// DefaultPurgeInterval is the rain purge interval, in minutes, of a kind.
func DefaultPurgeInterval(kind Kind) int {
	if kind == KindWXStation {
		return 5
	}
	return 1
}

// Options carries the station's collaborators.
type Options struct {
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
	// Store persists the rain windows; it should be namespaced per station.
	Store  rain.Store
	Dialer aprsis.DialFunc
}

type request struct {
	fn   func() error
	errc chan error
}

type txResult struct {
	at      time.Time
	payload string
	err     error
}

// Station is one configured weather station.
type Station struct {
	cfg     Config
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	client  *aprsis.Client
	policy  aprsis.ReconnectPolicy
	rain    *rain.Aggregator
	builder *report.Builder
	live    *LiveValues

	requests chan request
	txDone   chan txResult
	stopped  chan struct{}
	wg       sync.WaitGroup

	// owned by the loop goroutine
	ctx               context.Context
	available         bool
	unavailableReason string
	packets           []aprs.Packet
	packetsReceived   uint64
	lastTick          time.Time
	lastPurge         time.Time
	lastTransmit      time.Time
	transmitting      bool
	lastReport        *ReportStatus
}

// New builds a station. Nothing connects until Run.
func New(cfg Config, opts Options) (*Station, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("station name is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = DefaultPurgeInterval(cfg.Kind)
	}
	if cfg.PacketHistory <= 0 {
		cfg.PacketHistory = DefaultPacketHistory
	}
	if cfg.Comment == "" {
		cfg.Comment = DefaultComment
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	logger := opts.Logger.With("station", cfg.Name)

	var policy aprsis.ReconnectPolicy
	switch cfg.Kind {
	case KindWXStation:
		policy = &aprsis.Burst{Drain: cfg.Drain, Clock: opts.Clock, Logger: logger}
	case KindMain:
		policy = &aprsis.Persistent{Logger: logger}
	case KindRemote:
		policy = &aprsis.ReceiveOnly{Persistent: aprsis.Persistent{Logger: logger}}
		cfg.TxInterval = 0
	default:
		return nil, fmt.Errorf("station %s: unknown kind %q", cfg.Name, cfg.Kind)
	}

	clientOpts := []aprsis.Option{aprsis.WithClock(opts.Clock), aprsis.WithLogger(logger)}
	if opts.Dialer != nil {
		clientOpts = append(clientOpts, aprsis.WithDialer(opts.Dialer))
	}

	s := &Station{
		cfg:     cfg,
		clock:   opts.Clock,
		logger:  logger,
		metrics: opts.Metrics,
		client:  aprsis.New(cfg.Connection, clientOpts...),
		policy:  policy,
		rain:    rain.New(opts.Store, cfg.Location, logger),
		builder: &report.Builder{
			Location:    report.FixedLocation{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
			Comment:     cfg.Comment,
			SymbolTable: cfg.SymbolTable,
			SymbolCode:  cfg.SymbolCode,
		},
		live:     NewLiveValues(),
		requests: make(chan request),
		txDone:   make(chan txResult, 1),
		stopped:  make(chan struct{}),
	}

	// a burst station has nothing to wait for before its first report
	if cfg.Kind == KindWXStation {
		s.available = true
	} else {
		s.unavailableReason = "Initializing " + cfg.Name
	}
	return s, nil
}

// Name returns the station name.
func (s *Station) Name() string { return s.cfg.Name }

// Kind returns the station kind.
func (s *Station) Kind() Kind { return s.cfg.Kind }

// Run restores rain state, starts the connection policy and runs the loop
// until ctx is done. The station cannot be restarted.
func (s *Station) Run(ctx context.Context) error {
	defer close(s.stopped)
	s.ctx = ctx

	if err := s.rain.Load(ctx); err != nil {
		s.logger.Warnf("unable to load rain state, starting empty: %v", err)
	}
	s.publishRain()
	s.publishAvailability()

	ticker := scheduler.StartMinuteTicker(ctx, s.clock, s.logger)
	defer ticker.Stop()

	s.logger.Infof("starting %s station with %s policy", s.cfg.Kind, s.policy.Name())
	if err := s.policy.Start(ctx, s.client); err != nil {
		s.logger.Warnf("connection policy failed to start: %v", err)
	}

	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		case now := <-ticker.C():
			s.onTick(ctx, now)
		case req := <-s.requests:
			req.errc <- req.fn()
		case res := <-s.txDone:
			s.transmitDone(res)
		}
	}
}

func (s *Station) shutdown() {
	s.logger.Info("stopping station")
	s.client.Disconnect()
	s.wg.Wait()
	s.client.Close()
}

// do runs fn on the loop goroutine and returns its error.
func (s *Station) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, errc: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Station) handleEvent(ctx context.Context, ev aprsis.Event) {
	if s.metrics != nil {
		s.metrics.ConnectionEvents.WithLabelValues(s.cfg.Name, ev.Type.String()).Inc()
	}

	switch ev.Type {
	case aprsis.EventConnect:
		s.logger.Infow("APRS-IS connected", "session", ev.Session)
		s.setAvailable()
	case aprsis.EventError:
		s.logger.Warnf("APRS-IS error: %v", ev.Err)
		s.setUnavailable(fmt.Sprintf("APRSClient - error: %v", ev.Err))
	case aprsis.EventEnd:
		s.logger.Info("APRS-IS connection ended")
		s.setUnavailable("APRSClient - end")
	case aprsis.EventClose:
		s.logger.Info("APRS-IS connection closed")
		s.setUnavailable("APRSClient - close")
	case aprsis.EventReconnect:
		s.logger.Info("APRS-IS reconnecting")
		s.setUnavailable("APRSClient - reconnect: " + s.client.Config().Address())
	case aprsis.EventData:
		s.recordPacket(ev.Packet)
	}

	s.policy.HandleEvent(ctx, s.client, ev)
	s.publishConnectionState()
}

func (s *Station) recordPacket(p aprs.Packet) {
	s.logger.Debugw("APRS packet", "source", p.Source, "path", p.Path, "payload", p.Payload)
	s.packetsReceived++
	s.packets = append(s.packets, p)
	if over := len(s.packets) - s.cfg.PacketHistory; over > 0 {
		s.packets = append(s.packets[:0], s.packets[over:]...)
	}
	if s.metrics != nil {
		s.metrics.PacketsReceived.WithLabelValues(s.cfg.Name).Inc()
	}
}

func (s *Station) onTick(ctx context.Context, now time.Time) {
	minute := scheduler.TickMinute(now)
	if now.Before(minute) {
		now = minute
	}
	s.lastTick = minute

	s.purgeIfDue(ctx, now)

	if s.cfg.TxInterval > 0 && s.lastTransmit.Before(minute) &&
		minute.In(s.cfg.Location).Minute()%s.cfg.TxInterval == 0 {
		s.lastTransmit = minute
		s.transmit(ctx, now)
	}
	s.publishConnectionState()
}

// purgeIfDue purges the rain windows at most once per minute, on minutes that
// are a multiple of the purge interval.
func (s *Station) purgeIfDue(ctx context.Context, now time.Time) {
	minute := scheduler.TickMinute(now)
	if !s.lastPurge.Before(minute) {
		return
	}
	if minute.In(s.cfg.Location).Minute()%s.cfg.PurgeInterval != 0 {
		return
	}
	s.lastPurge = minute

	if err := s.rain.Purge(ctx, now); err != nil {
		s.logger.Errorf("unable to save rain state after purge: %v", err)
	}
	s.publishRain()
}

// transmit builds the report on the loop and delivers it on its own
// goroutine, since a burst delivery holds the socket open for the drain.
func (s *Station) transmit(ctx context.Context, now time.Time) {
	if s.transmitting {
		s.logger.Warn("previous weather report still in flight, skipping")
		return
	}

	snap := s.live.Snapshot()
	totals := report.FreezeTotals(s.rain)
	tx := report.TransmitterFunc(func(ctx context.Context, payload string) error {
		return s.policy.Transmit(ctx, s.client, payload)
	})

	s.transmitting = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		payload, err := s.builder.Transmit(ctx, now, snap, totals, tx)
		s.txDone <- txResult{at: now, payload: payload, err: err}
	}()
}

func (s *Station) transmitDone(res txResult) {
	s.transmitting = false

	outcome := "sent"
	switch {
	case errors.Is(res.err, report.ErrNothingToSend):
		s.logger.Info("no weather data, nothing to report")
		outcome = "empty"
	case res.err != nil:
		s.logger.Warnf("weather report not sent: %v", res.err)
		outcome = "error"
	default:
		s.logger.Infof("weather report sent: %s", res.payload)
	}

	if outcome != "empty" {
		rs := &ReportStatus{Time: res.at, Payload: res.payload}
		if res.err != nil {
			rs.Error = res.err.Error()
		}
		s.lastReport = rs
	}
	if s.metrics != nil {
		s.metrics.ReportsSent.WithLabelValues(s.cfg.Name, outcome).Inc()
		if outcome == "sent" {
			s.metrics.LastReportSeconds.WithLabelValues(s.cfg.Name).Set(float64(res.at.Unix()))
		}
	}
}

func (s *Station) setAvailable() {
	s.available = true
	s.unavailableReason = ""
	s.publishAvailability()
}

func (s *Station) setUnavailable(reason string) {
	s.available = false
	s.unavailableReason = reason
	s.publishAvailability()
}

func (s *Station) publishAvailability() {
	if s.metrics != nil {
		s.metrics.SetAvailable(s.cfg.Name, s.available)
	}
}

func (s *Station) publishConnectionState() {
	if s.metrics != nil {
		s.metrics.ConnectionState.WithLabelValues(s.cfg.Name).Set(float64(s.client.State()))
	}
}

func (s *Station) publishRain() {
	if s.metrics == nil {
		return
	}
	v, ok := s.rain.Rain1h()
	s.metrics.SetRain(s.cfg.Name, "1h", v, ok)
	v, ok = s.rain.Rain24h()
	s.metrics.SetRain(s.cfg.Name, "24h", v, ok)
	v, ok = s.rain.RainToday()
	s.metrics.SetRain(s.cfg.Name, "today", v, ok)
}
