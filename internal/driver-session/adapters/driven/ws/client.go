package ws

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/mylogger"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 3 * time.Second
	defaultDelayCap    = 30 * time.Second
)

type Config struct {
	// BaseURL is the dispatch endpoint, e.g. ws://host:3002. The client
	// identifies itself with ?type=driver&id=<driverID>.
	BaseURL  string
	DriverID string

	// Reconnect policy knobs; zero values take the defaults (5 attempts,
	// 3s base, 30s cap).
	MaxAttempts int
	BaseDelay   time.Duration
	DelayCap    time.Duration
}

func (c *Config) fill() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.DelayCap == 0 {
		c.DelayCap = defaultDelayCap
	}
}

// Client owns the persistent connection to the dispatch server: one
// connection at a time, linear-capped reconnect backoff on abnormal
// closes, and a terminal give-up state after the attempt cap.
type Client struct {
	cfg    Config
	log    mylogger.Logger
	events driven.ConnEvents
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	state     driven.ConnState
	attempts  int
	reconnect *time.Timer
	// gen invalidates stale dial results and read loops after Connect or
	// Close superseded them.
	gen    int
	closed bool

	writeMu sync.Mutex
}

func NewClient(cfg Config, events driven.ConnEvents, log mylogger.Logger) *Client {
	cfg.fill()
	return &Client{
		cfg:    cfg,
		log:    log.With("driver_id", cfg.DriverID),
		events: events,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  driven.Disconnected,
	}
}

var _ driven.DispatchConn = (*Client)(nil)

// Connect starts dialing asynchronously. An existing connection is
// closed first, and any pending reconnect timer is superseded.
func (c *Client) Connect() {
	c.mu.Lock()
	c.closed = false
	c.attempts = 0
	c.stopReconnectLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	gen := c.gen
	c.state = driven.Connecting
	c.mu.Unlock()

	c.events.ConnStateChanged(driven.Connecting, false)
	go c.dial(gen)
}

func (c *Client) State() driven.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send marshals one frame onto the socket. Fails fast when the
// connection is not established; nothing is queued.
func (c *Client) Send(frame any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != driven.Connected || conn == nil {
		return model.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close shuts the connection down intentionally. Closing with the
// normal closure code keeps the abnormal-close branch (and thus the
// reconnect policy) from firing, and cancels any pending timer.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	c.closed = true
	c.gen++
	c.stopReconnectLocked()
	conn := c.conn
	c.conn = nil
	changed := c.state != driven.Disconnected
	c.state = driven.Disconnected
	c.mu.Unlock()

	var err error
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(code, reason)
		if werr := conn.WriteControl(websocket.CloseMessage, message, deadline); werr != nil {
			err = fmt.Errorf("writing close message: %w", werr)
		}
		conn.Close()
	}
	if changed {
		c.events.ConnStateChanged(driven.Disconnected, false)
	}
	return err
}

func (c *Client) dial(gen int) {
	conn, _, err := c.dialer.Dial(c.endpoint(), nil)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Action("ws_dial").Warn("handshake failed", "error", err.Error())
		c.handleAbnormalClose()
		return
	}

	c.conn = conn
	c.state = driven.Connected
	// Reset the counter on every successful connect.
	c.attempts = 0
	c.mu.Unlock()

	c.log.Action("ws_connect").Info("connected to dispatch server")
	c.events.ConnStateChanged(driven.Connected, false)
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			c.events.InboundFrame(data)
			continue
		}

		c.mu.Lock()
		stale := c.closed || gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			// Server hung up cleanly; not a failure, no retry.
			c.log.Action("ws_close").Info("server closed the connection")
			c.mu.Lock()
			c.conn = nil
			c.state = driven.Disconnected
			c.mu.Unlock()
			c.events.ConnStateChanged(driven.Disconnected, false)
			return
		}

		c.log.Action("ws_close").Warn("connection lost", "error", err.Error())
		c.handleAbnormalClose()
		return
	}
}

// handleAbnormalClose applies the reconnect policy: linear-capped
// delay min(base*attempt, cap), terminal after MaxAttempts consecutive
// failures.
func (c *Client) handleAbnormalClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = driven.Disconnected
	c.attempts++
	attempt := c.attempts

	if attempt >= c.cfg.MaxAttempts {
		c.mu.Unlock()
		c.log.Action("ws_reconnect").Error("giving up after repeated failures",
			fmt.Errorf("%d consecutive abnormal closes", attempt))
		c.events.ConnStateChanged(driven.Disconnected, true)
		return
	}

	delay := backoffDelay(attempt, c.cfg.BaseDelay, c.cfg.DelayCap)
	gen := c.gen
	c.reconnect = time.AfterFunc(delay, func() {
		c.redial(gen)
	})
	c.mu.Unlock()

	c.log.Action("ws_reconnect").Warn("scheduling reconnect",
		"attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "delay", delay.String())
	c.events.ConnStateChanged(driven.Disconnected, false)
}

func (c *Client) redial(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = driven.Connecting
	c.mu.Unlock()

	c.events.ConnStateChanged(driven.Connecting, false)
	c.dial(gen)
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/?type=driver&id=%s", base, url.QueryEscape(c.cfg.DriverID))
}

func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	delay := time.Duration(attempt) * base
	if delay > limit {
		return limit
	}
	return delay
}
