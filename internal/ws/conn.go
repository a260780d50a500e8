package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/pkg/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 15 * time.Second
	outboxSize   = 8
)

var (
	ErrSlowConsumer = errors.New("connection outbox full")
	ErrConnClosed   = errors.New("connection closed")
)

// serverConn is the server side of one accepted websocket. It satisfies
// registry.Conn: Send never blocks, frames are written by writeLoop.
type serverConn struct {
	id     uint32
	conn   *websocket.Conn
	clock  clockwork.Clock
	logger *zap.Logger

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newServerConn(id uint32, conn *websocket.Conn, clock clockwork.Clock, logger *zap.Logger) *serverConn {
	return &serverConn{
		id:     id,
		conn:   conn,
		clock:  clock,
		logger: logger,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
}

func (c *serverConn) ID() uint32 { return c.id }

func (c *serverConn) Send(s engine.State) error {
	return c.enqueue(types.StateUpdate(s))
}

func (c *serverConn) enqueue(msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.outbox <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// writeLoop drains the outbox and pings the peer until ctx ends or a write
// fails. A failed write tears the socket down, which also ends the reader.
func (c *serverConn) writeLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case payload := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.logger.Debug("write failed", zap.Uint32("connection_id", c.id), zap.Error(err))
				c.closeNow()
				return
			}

		case <-ticker.Chan():
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.logger.Debug("ping failed", zap.Uint32("connection_id", c.id), zap.Error(err))
				c.closeNow()
				return
			}
		}
	}
}

func (c *serverConn) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *serverConn) closeNow() {
	c.markClosed()
	_ = c.conn.CloseNow()
}
