// Package aprsis implements an APRS-IS client session: connect, login,
// filter, receive and send, with explicit lifecycle events. Reconnect
// behaviour is left to a ReconnectPolicy chosen by the caller.
package aprsis

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/pkg/aprs"
)

const (
	DefaultPort             = 14580
	DefaultReconnectBackoff = 10 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second

	readBufferSize = 4096
)

// Config holds the connection settings of a Client.
type Config struct {
	Host             string
	Port             int
	Callsign         string
	Passcode         string // computed from Callsign when empty
	Filter           string
	AppVersion       string
	ReconnectBackoff time.Duration
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	Debug            bool
}

// Address returns host:port of the configured server.
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) withDefaults() Config {
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// DialFunc opens the TCP connection to the server.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for backoff timers and report timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer replaces the default net.Dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client is a single APRS-IS session. It owns at most one socket at a time.
// Methods are safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	dial   DialFunc
	events *eventQueue

	state   State
	conn    net.Conn
	session string
	// gen is bumped on every teardown; goroutines holding an older value
	// belong to a dead session and must stay silent.
	gen           uint64
	cancelBackoff context.CancelFunc
	closed        bool
}

// New creates a disconnected client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:   cfg.withDefaults(),
		clock: clockwork.NewRealClock(),
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	if c.dial == nil {
		d := &net.Dialer{}
		c.dial = d.DialContext
	}
	c.events = newEventQueue()
	return c
}

// Events returns the ordered event stream. It is closed by Close.
func (c *Client) Events() <-chan Event {
	return c.events.out
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the id of the current socket session, or "".
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetServer changes the server used by the next connect.
func (c *Client) SetServer(host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Host = host
	c.cfg.Port = port
}

// SetCallsign changes the callsign used by the next login.
func (c *Client) SetCallsign(callsign string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Callsign = callsign
}

// SetPasscode changes the passcode used by the next login.
func (c *Client) SetPasscode(passcode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Passcode = passcode
}

// SetFilter changes the filter sent by the next login.
func (c *Client) SetFilter(filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Filter = filter
}

// Connect dials the server. A dial failure is emitted as EventError and
// returned as a *ConnectionError; it is never retried here.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &StateError{Op: "connect", State: c.state, Err: ErrClosed}
	}
	switch c.state {
	case StateConnected, StateLoggedIn:
		defer c.mu.Unlock()
		return &StateError{Op: "connect", State: c.state, Err: ErrAlreadyConnected}
	case StateConnecting, StateClosing:
		defer c.mu.Unlock()
		return &StateError{Op: "connect", State: c.state, Err: ErrBusy}
	}
	c.state = StateConnecting
	gen := c.gen
	cfg := c.cfg
	c.mu.Unlock()

	return c.open(ctx, gen, cfg)
}

func (c *Client) open(ctx context.Context, gen uint64, cfg Config) error {
	address := cfg.Address()
	c.logger.Infof("connecting to APRS-IS server %s", address)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	conn, err := c.dial(dialCtx, "tcp", address)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		if conn != nil {
			conn.Close()
		}
		return &StateError{Op: "connect", State: c.state, Err: ErrAborted}
	}
	if err != nil {
		c.state = StateDisconnected
		cerr := &ConnectionError{Op: "dial", Server: address, Err: err}
		c.emitLocked(Event{Type: EventError, Err: cerr})
		return cerr
	}

	c.conn = conn
	c.session = uuid.New().String()
	c.state = StateConnected
	c.logger.Infow("connected to APRS-IS", "server", address, "session", c.session)
	c.emitLocked(Event{Type: EventConnect})

	go c.readLoop(conn, gen, c.session)
	return nil
}

// UserLogin sends the login line and, when configured, the filter.
func (c *Client) UserLogin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return &StateError{Op: "login", State: c.state, Err: ErrNotConnected}
	}

	passcode := c.cfg.Passcode
	if passcode == "" {
		passcode = strconv.Itoa(aprs.CalculatePasscode(c.cfg.Callsign))
	}
	c.logger.Infof("logging in to APRS-IS as %s", c.cfg.Callsign)
	if err := c.writeLocked(aprs.EncodeLogin(c.cfg.Callsign, passcode, c.cfg.AppVersion)); err != nil {
		return err
	}
	if c.cfg.Filter != "" {
		if err := c.writeLocked(aprs.EncodeFilter(c.cfg.Filter)); err != nil {
			return err
		}
	}
	c.state = StateLoggedIn
	return nil
}

// UserFilter sends the configured filter.
func (c *Client) UserFilter() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return &StateError{Op: "filter", State: c.state, Err: ErrNotConnected}
	}
	return c.writeLocked(aprs.EncodeFilter(c.cfg.Filter))
}

// SendMessage sends payload from the configured callsign. It fails fast when
// not connected; nothing is queued.
func (c *Client) SendMessage(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return &StateError{Op: "send", State: c.state, Err: ErrNotConnected}
	}
	return c.writeLocked(aprs.EncodeMessage(c.cfg.Callsign, payload))
}

// SendPositionReport encodes and sends a position report.
func (c *Client) SendPositionReport(r aprs.PositionReport) error {
	return c.SendMessage(aprs.EncodePositionReport(r))
}

// SendWeatherReport encodes and sends a weather report, stamping it with the
// client clock when it carries no timestamp.
func (c *Client) SendWeatherReport(r aprs.WeatherReport) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = c.clock.Now()
	}
	return c.SendMessage(aprs.EncodeWeatherReport(r))
}

// Reconnect drops the current socket without close events, waits the
// configured backoff and connects again. A failed attempt is reported as
// EventError. Disconnect or ctx cancel the pending attempt.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &StateError{Op: "reconnect", State: c.state, Err: ErrClosed}
	}
	if c.state == StateClosing || c.state == StateConnecting {
		return &StateError{Op: "reconnect", State: c.state, Err: ErrBusy}
	}

	c.emitLocked(Event{Type: EventReconnect})
	c.teardownLocked()
	c.state = StateClosing

	gen := c.gen
	backoff := c.cfg.ReconnectBackoff
	bctx, cancel := context.WithCancel(ctx)
	c.cancelBackoff = cancel
	timer := c.clock.NewTimer(backoff)

	c.logger.Infof("reconnecting to APRS-IS in %v", backoff)
	go c.awaitReconnect(bctx, cancel, timer, gen)
	return nil
}

func (c *Client) awaitReconnect(ctx context.Context, cancel context.CancelFunc, timer clockwork.Timer, gen uint64) {
	defer cancel()
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateDisconnected
			c.cancelBackoff = nil
		}
		c.mu.Unlock()
		return
	case <-timer.Chan():
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.cancelBackoff = nil
	c.state = StateConnecting
	cfg := c.cfg
	c.mu.Unlock()

	if err := c.open(ctx, gen, cfg); err != nil {
		c.logger.Warnf("reconnect failed: %v", err)
	}
}

// Disconnect tears down the socket and any pending reconnect. It emits no
// events and schedules nothing.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.logger.Infow("disconnecting from APRS-IS", "session", c.session)
	}
	c.teardownLocked()
	c.state = StateDisconnected
}

// Close disconnects and shuts down the event stream. The client cannot be
// reused.
func (c *Client) Close() {
	c.Disconnect()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.events.close()
}

func (c *Client) connectedLocked() bool {
	return c.state == StateConnected || c.state == StateLoggedIn
}

func (c *Client) teardownLocked() {
	c.gen++
	if c.cancelBackoff != nil {
		c.cancelBackoff()
		c.cancelBackoff = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.session = ""
}

func (c *Client) emitLocked(ev Event) {
	ev.Session = c.session
	ev.Time = c.clock.Now()
	c.events.push(ev)
}

func (c *Client) writeLocked(line string) error {
	if c.cfg.Debug {
		c.logger.Debugf("aprsis >> %s", line)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return &ConnectionError{Op: "write", Server: c.cfg.Address(), Err: err}
	}
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		return &ConnectionError{Op: "write", Server: c.cfg.Address(), Err: err}
	}
	return nil
}

func (c *Client) readLoop(conn net.Conn, gen uint64, session string) {
	var lines aprs.LineBuffer
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				c.handleLine(line, gen)
			}
		}
		if err != nil {
			c.readFailed(gen, session, err)
			return
		}
	}
}

func (c *Client) handleLine(line string, gen uint64) {
	if c.cfg.Debug {
		c.logger.Debugf("aprsis << %s", line)
	}

	switch {
	case aprs.IsLoginResponse(line):
		if aprs.LoginVerified(line) {
			c.logger.Infof("APRS-IS login verified: %s", line)
		} else {
			c.logger.Warnf("APRS-IS login not verified, station is receive-only: %s", line)
		}
		return
	case aprs.IsServerComment(line):
		return
	}

	packets := aprs.ParseChunk([]byte(line))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	for _, p := range packets {
		c.emitLocked(Event{Type: EventData, Packet: p})
	}
}

func (c *Client) readFailed(gen uint64, session string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected

	if errors.Is(err, io.EOF) {
		c.logger.Infow("APRS-IS server closed the connection", "session", session)
		c.emitLocked(Event{Type: EventEnd})
	} else {
		c.logger.Warnw("APRS-IS connection failed", "session", session, "error", err)
		c.emitLocked(Event{Type: EventError, Err: &ConnectionError{Op: "read", Server: c.cfg.Address(), Err: err}})
	}
	c.emitLocked(Event{Type: EventClose})
	c.session = ""
}
