package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/servifast/jobsync/internal/auth"
)

// Event is one inbound frame. Data carries the full raw frame so consumers
// can decode the payload shape they expect; Type is pre-extracted for
// routing.
type Event struct {
	Type string
	Data json.RawMessage
}

// RetryPolicy controls reconnection after dial failures and connection loss.
// The delay doubles from MinDelay up to MaxDelay; MinDelay == MaxDelay gives
// a fixed interval. MaxFailures consecutive dial failures settle the channel
// in StateFailed; zero means retry forever.
type RetryPolicy struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxFailures int
}

func (p RetryPolicy) delay(failures int) time.Duration {
	d := p.MinDelay
	for i := 1; i < failures && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Config holds Channel configuration.
type Config struct {
	// URL is the full websocket endpoint. The session token is appended as
	// a query parameter at dial time, never stored in the URL.
	URL    string
	Token  auth.TokenSource
	Dialer Dialer
	Logger *slog.Logger

	// PingInterval is the keepalive cadence while connected.
	PingInterval time.Duration
	// ConfirmWindow bounds each dial attempt. A dial that does not complete
	// inside the window is abandoned and redialed once before counting as a
	// failure.
	ConfirmWindow time.Duration
	Retry         RetryPolicy
}

// Channel is one self-healing websocket connection. Connect starts the run
// loop; subscribers observe frames via Subscribe and lifecycle via
// StateChanges.
type Channel struct {
	cfg    Config
	logger *slog.Logger
	events *Hub[Event]
	states *Hub[ConnectionState]

	mu      sync.Mutex
	state   ConnectionState
	conn    Conn
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChannel validates cfg and builds a Channel in StateDisconnected.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket URL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewDialer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ConfirmWindow <= 0 {
		cfg.ConfirmWindow = 2 * time.Second
	}
	if cfg.Retry.MinDelay <= 0 {
		cfg.Retry.MinDelay = 5 * time.Second
	}
	if cfg.Retry.MaxDelay < cfg.Retry.MinDelay {
		cfg.Retry.MaxDelay = cfg.Retry.MinDelay
	}

	return &Channel{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "transport")),
		events: NewHub[Event](),
		states: NewHub[ConnectionState](),
		state:  StateDisconnected,
	}, nil
}

// Connect starts the run loop. It is idempotent while the loop is alive; a
// channel that settled in StateFailed or was closed can be restarted.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
}

// Close stops the run loop, waits for it to exit, and settles the state to
// Disconnected, including for a channel that gave up in StateFailed.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		c.setState(StateDisconnected)
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.setState(StateDisconnected)
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel of inbound events. Frames that arrived before
// the call are not replayed.
func (c *Channel) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.Subscribe(buffer)
}

// StateChanges returns a channel of state transitions.
func (c *Channel) StateChanges(buffer int) (<-chan ConnectionState, func()) {
	return c.states.Subscribe(buffer)
}

// Send writes one frame to the current connection.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("channel is not connected")
	}
	return conn.WriteMessage(data)
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("Connection state changed", slog.String("state", s.String()))
	c.states.Publish(s)
}

func (c *Channel) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context) {
	defer func() {
		c.setConn(nil)
		if c.State() != StateFailed {
			c.setState(StateDisconnected)
		}
		c.mu.Lock()
		c.started = false
		done := c.done
		c.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAuthRejected) || errors.Is(err, auth.ErrNoToken) {
				c.logger.Error("Websocket credential rejected, giving up", slog.Any("error", err))
				c.setState(StateFailed)
				return
			}

			failures++
			c.logger.Warn("Websocket dial failed",
				slog.Int("consecutive_failures", failures),
				slog.Any("error", err),
			)
			if c.cfg.Retry.MaxFailures > 0 && failures >= c.cfg.Retry.MaxFailures {
				c.setState(StateFailed)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.Retry.delay(failures)):
			}
			continue
		}

		failures = 0
		c.setConn(conn)
		c.setState(StateConnected)
		c.logger.Info("Websocket connected")

		err = c.serve(ctx, conn)
		c.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		// the drop must be observable before the retry delay, so poll
		// fallbacks gated on the connected state take over immediately
		c.setState(StateDisconnected)
		c.logger.Warn("Websocket connection lost", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.Retry.MinDelay):
		}
	}
}

// dial makes one connection attempt, bounded by the confirm window, with a
// single automatic redial before reporting failure.
func (c *Channel) dial(ctx context.Context) (Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmWindow)
		conn, err := c.cfg.Dialer.DialContext(dialCtx, endpoint)
		cancel()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrAuthRejected) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Channel) endpoint() (string, error) {
	token, err := c.cfg.Token.Token()
	if err != nil {
		return "", err
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// serve pumps frames until the connection drops or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn Conn) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					conn.Close()
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &envelope); err != nil {
			c.logger.Warn("Discarding malformed frame", slog.Any("error", err))
			continue
		}
		c.events.Publish(Event{Type: envelope.Type, Data: frame})
	}
}
