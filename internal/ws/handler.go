// Package ws carries the sync protocol over websockets: Handler accepts client
// connections on the server, Client dials the server from a remote.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/authority"
	"github.com/DoyleJ11/uki-sync/pkg/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	readLimit    = 4096
	leaveTimeout = 2 * time.Second
)

// Dispatcher is the part of authority.Loop the handler needs.
type Dispatcher interface {
	Send(ctx context.Context, m authority.Msg) error
}

type Server struct {
	loop   Dispatcher
	logger *zap.Logger
	clock  clockwork.Clock
	accept *websocket.AcceptOptions

	// ids start at 1; 0 means "no client" in State.OriginID.
	nextID atomic.Uint32
}

type ServerOption func(*Server)

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

func WithServerClock(c clockwork.Clock) ServerOption {
	return func(s *Server) { s.clock = c }
}

// WithOriginPatterns allows browser clients from the given origins.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.accept.OriginPatterns = patterns }
}

func NewServer(loop Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		loop:   loop,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		accept: &websocket.AcceptOptions{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// leave unregisters a finished connection. A Leave that misses leaveTimeout
// is retried without a deadline; the send still returns once the loop stops.
func (s *Server) leave(id uint32, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	err := s.loop.Send(ctx, authority.Leave{ConnID: id})
	cancel()
	if err == nil || errors.Is(err, authority.ErrLoopStopped) {
		return
	}
	logger.Warn("leave delayed, authority inbox is full", zap.Error(err))
	if err := s.loop.Send(context.Background(), authority.Leave{ConnID: id}); err != nil && !errors.Is(err, authority.ErrLoopStopped) {
		logger.Error("leave failed", zap.Error(err))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.accept)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := s.nextID.Add(1)
	logger := s.logger.With(zap.Uint32("connection_id", id))
	sc := newServerConn(id, conn, s.clock, logger)
	defer sc.markClosed()

	// Welcome goes into the outbox before Join so it precedes the first state.
	if err := sc.enqueue(types.Welcome(id)); err != nil {
		return
	}
	go sc.writeLoop(ctx)

	if err := s.loop.Send(ctx, authority.Join{Conn: sc}); err != nil {
		logger.Debug("join rejected", zap.Error(err))
		return
	}
	defer s.leave(id, logger)

	// Reader loop
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Debug("client closed connection")
			default:
				if !errors.Is(err, context.Canceled) {
					logger.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			_ = sc.enqueue(types.Error("bad json"))
			continue
		}
		cmd, err := cm.ToCommand()
		if err != nil {
			_ = sc.enqueue(types.Error(err.Error()))
			continue
		}

		if err := s.loop.Send(ctx, authority.FromClient{ConnID: id, Cmd: cmd}); err != nil {
			return
		}
	}
}
