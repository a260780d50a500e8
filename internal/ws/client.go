package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 5 * time.Second
	updatesBuffer      = 16
)

var ErrNotConnected = errors.New("not connected")

// Client is the remote's side of the link. Start and Stop never block; the
// dial and the read loop run on their own goroutine. Each Start bumps a
// generation so results of a superseded attempt are discarded, including
// states it left buffered in Updates.
type Client struct {
	logger      *zap.Logger
	dialTimeout time.Duration
	updates     chan engine.State

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	conn      *websocket.Conn
	connected bool
	localID   uint32
}

type ClientOption func(*Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger:      zap.NewNop(),
		dialTimeout: defaultDialTimeout,
		updates:     make(chan engine.State, updatesBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a connection attempt to address ("host:port" or a ws:// URL),
// abandoning any attempt or link already in progress.
func (c *Client) Start(address string) {
	target, err := DialURL(address)

	c.mu.Lock()
	c.resetLocked()
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("invalid server address", zap.String("address", address), zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	gen := c.gen
	c.mu.Unlock()

	go c.run(ctx, gen, target)
}

func (c *Client) Stop() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Client) resetLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		conn := c.conn
		go conn.Close(websocket.StatusNormalClosure, "bye")
	}
	c.conn = nil
	c.connected = false
	c.localID = 0
	c.drainLocked()
}

// drainLocked drops states still buffered from the abandoned link.
func (c *Client) drainLocked() {
	for {
		select {
		case <-c.updates:
		default:
			return
		}
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LocalID is the connection id the server assigned to this client, or 0.
func (c *Client) LocalID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

// Updates delivers authoritative states. Only the newest matters, so a slow
// reader loses older states rather than stalling the link.
func (c *Client) Updates() <-chan engine.State { return c.updates }

func (c *Client) Send(cmd engine.Command) error {
	c.mu.Lock()
	conn, ok := c.conn, c.connected
	c.mu.Unlock()
	if !ok || conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(types.FromCommand(cmd))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, gen uint64, target string) {
	logger := c.logger.With(zap.String("address", target))

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, _, err := websocket.Dial(dctx, target, nil)
	cancel()
	if err != nil {
		logger.Debug("dial failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			if c.gen == gen {
				c.conn = nil
				c.connected = false
				c.localID = 0
			}
			c.mu.Unlock()
			if ctx.Err() == nil {
				logger.Info("connection lost", zap.Error(err))
			}
			_ = conn.CloseNow()
			return
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("undecodable server message", zap.Error(err))
			continue
		}
		c.handle(gen, msg, logger)
	}
}

func (c *Client) handle(gen uint64, msg types.ServerMessage, logger *zap.Logger) {
	switch msg.Type {
	case types.TypeWelcome:
		c.mu.Lock()
		if c.gen == gen {
			c.localID = msg.ConnectionID
			c.connected = true
		}
		c.mu.Unlock()
		logger.Info("connected", zap.Uint32("connection_id", msg.ConnectionID))

	case types.TypeStateUpdate:
		if msg.State == nil {
			return
		}
		// push never blocks, so it runs under mu and a concurrent reset
		// cannot slip between the generation check and the send.
		c.mu.Lock()
		if c.gen == gen {
			c.push(msg.State.ToState())
		}
		c.mu.Unlock()

	case types.TypeError:
		logger.Debug("server rejected message", zap.String("error", msg.Error))
	}
}

func (c *Client) push(s engine.State) {
	for {
		select {
		case c.updates <- s:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

// DialURL turns a configured server address into a websocket URL.
// "host:port" becomes "ws://host:port/ws".
func DialURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty address")
	}
	if !strings.Contains(address, "://") {
		address = "ws://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", address)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
