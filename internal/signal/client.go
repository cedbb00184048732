package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lureka/callkit/internal/auth"
	"github.com/lureka/callkit/internal/event"
	"github.com/lureka/callkit/internal/util"
)

// Status is the observable connection state of the client.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusFailed is the terminal state after reconnect exhaustion; only an
	// explicit Connect call leaves it.
	StatusFailed Status = "failed"
)

const (
	defaultHandshakeTimeout     = 10 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultReconnectBaseDelay   = 2 * time.Second
	defaultReconnectMaxDelay    = 10 * time.Second
)

// Config tunes one Client. Zero fields fall back to the defaults above.
type Config struct {
	URL                  string
	HandshakeTimeout     time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	return c
}

// attempt tracks one in-flight Connect so concurrent callers share a single
// dial and a single resolution.
type attempt struct {
	done chan struct{}
	err  error
}

// Client is a persistent, authenticated, auto-reconnecting envelope channel
// to the signaling relay.
type Client struct {
	cfg    Config
	tokens auth.TokenProvider
	log    zerolog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	status        Status
	pending       *attempt
	reconnectStop chan struct{}
	gen           int // connection generation; read loops of old conns are ignored

	wmu sync.Mutex // serializes writes to conn

	connected       event.Feed[struct{}]
	disconnected    event.Feed[struct{}]
	reconnecting    event.Feed[int]
	reconnected     event.Feed[int]
	reconnectFailed event.Feed[error]
	messages        event.Feed[Envelope]
}

// NewClient creates a disconnected client for the given relay.
func NewClient(cfg Config, tokens auth.TokenProvider) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		tokens: tokens,
		log:    util.Log().With().Str("component", "signal").Logger(),
		status: StatusDisconnected,
	}
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect establishes the channel. If an attempt is already in flight, the
// caller joins it and shares its outcome instead of opening a second
// connection. Errors after a successful connect are reported via events
// only, never through a stale Connect result.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	if p := c.pending; p != nil {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.reconnectStop != nil {
		// A manual Connect supersedes the automatic retry loop.
		close(c.reconnectStop)
		c.reconnectStop = nil
	}
	p := &attempt{done: make(chan struct{})}
	c.pending = p
	c.status = StatusConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	c.pending = nil
	if err == nil && c.status != StatusConnecting {
		// Disconnect raced the dial; don't resurrect the connection.
		err = errors.New("disconnected during connect")
		conn.Close()
		conn = nil
	}
	if err != nil {
		c.status = StatusDisconnected
		p.err = err
		c.mu.Unlock()
		close(p.done)
		return err
	}
	c.conn = conn
	c.status = StatusConnected
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	close(p.done)

	go c.readLoop(conn, gen)
	c.connected.Emit(struct{}{})
	return nil
}

// dial performs one authenticated WebSocket handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dctx, c.cfg.URL, header)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return conn, nil
}

// Disconnect closes the channel, releases the socket, and cancels any
// pending reconnect. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnectStop != nil {
		close(c.reconnectStop)
		c.reconnectStop = nil
	}
	conn := c.conn
	c.conn = nil
	wasConnected := c.status == StatusConnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.wmu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wmu.Unlock()
		conn.Close()
	}
	if wasConnected {
		c.disconnected.Emit(struct{}{})
	}
}

// Send writes an envelope to the relay. Delivery is fire-and-forget: when
// the channel is down the envelope is logged and dropped, never an error.
func (c *Client) Send(env Envelope) {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if status != StatusConnected || conn == nil {
		c.log.Warn().Str("type", string(env.Type)).Str("room", env.RoomID).
			Msg("not connected, dropping outbound envelope")
		return
	}

	c.wmu.Lock()
	err := conn.WriteJSON(env)
	c.wmu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to write envelope")
		return
	}
	util.Stats.AddSent()
}

// readLoop drains one connection. A decode failure drops the single message;
// a read failure ends the loop and, unless the close was intentional, starts
// the reconnect loop.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}
		util.Stats.AddRecv()
		c.messages.Emit(env)
	}
}

func (c *Client) handleReadError(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.status != StatusConnected {
		// Stale loop, or the close was requested locally.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusReconnecting
	stop := make(chan struct{})
	c.reconnectStop = stop
	c.mu.Unlock()

	c.log.Warn().Err(err).Msg("relay connection lost")
	c.disconnected.Emit(struct{}{})

	go c.reconnectLoop(stop)
}

// reconnectLoop retries the dial with exponential backoff, capped at
// MaxReconnectAttempts. Exhaustion is terminal until a manual Connect.
func (c *Client) reconnectLoop(stop chan struct{}) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectBaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = c.cfg.ReconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for n := 1; n <= c.cfg.MaxReconnectAttempts; n++ {
		c.reconnecting.Emit(n)

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", n).Msg("reconnect attempt failed")
			continue
		}

		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			conn.Close()
			return
		default:
		}
		c.conn = conn
		c.status = StatusConnected
		c.reconnectStop = nil
		c.gen++
		gen := c.gen
		c.mu.Unlock()

		go c.readLoop(conn, gen)
		util.Stats.AddReconnect()
		c.log.Info().Int("attempt", n).Msg("relay connection restored")
		c.reconnected.Emit(n)
		return
	}

	c.mu.Lock()
	c.status = StatusFailed
	c.reconnectStop = nil
	c.mu.Unlock()
	c.log.Error().Int("attempts", c.cfg.MaxReconnectAttempts).Err(ErrReconnectExhausted).Msg("giving up")
	c.reconnectFailed.Emit(ErrReconnectExhausted)
}

// ──────────────────────────────────────────────────────────────────────────────
// Event subscriptions. Each returns a cancel func removing that handler.
// ──────────────────────────────────────────────────────────────────────────────

func (c *Client) OnConnect(fn func()) func() {
	return c.connected.Subscribe(func(struct{}) { fn() })
}

func (c *Client) OnDisconnect(fn func()) func() {
	return c.disconnected.Subscribe(func(struct{}) { fn() })
}

func (c *Client) OnReconnecting(fn func(attempt int)) func() {
	return c.reconnecting.Subscribe(fn)
}

func (c *Client) OnReconnect(fn func(attempt int)) func() {
	return c.reconnected.Subscribe(fn)
}

// OnReconnectFailed fires once when automatic reconnection gives up; the
// error is ErrReconnectExhausted.
func (c *Client) OnReconnectFailed(fn func(error)) func() {
	return c.reconnectFailed.Subscribe(fn)
}

func (c *Client) OnMessage(fn func(Envelope)) func() {
	return c.messages.Subscribe(fn)
}
