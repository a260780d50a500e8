package authority

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/internal/registry"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultTickInterval = 100 * time.Millisecond

var ErrLoopStopped = errors.New("authority loop stopped")

type Msg interface{ isAuthorityMsg() }

// Join registers a freshly accepted connection.
type Join struct {
	Conn registry.Conn
}

func (Join) isAuthorityMsg() {}

type Leave struct{ ConnID uint32 }

func (Leave) isAuthorityMsg() {}

type FromClient struct {
	ConnID uint32
	Cmd    engine.Command
}

func (FromClient) isAuthorityMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isAuthorityMsg() {}

type Shutdown struct{}

func (Shutdown) isAuthorityMsg() {}

type View struct {
	NumClients int
	Layout     engine.Layout
	State      engine.State
}

// Loop serialises every access to an Authority onto one goroutine and drives
// its heartbeat from a ticker.
type Loop struct {
	inbox        chan Msg
	authority    *Authority
	clock        clockwork.Clock
	tickInterval time.Duration
	logger       *zap.Logger
	done         chan struct{}
}

type LoopOption func(*Loop)

func WithLoopClock(c clockwork.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

func WithTickInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.tickInterval = d
		}
	}
}

func WithLoopLogger(logger *zap.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

func NewLoop(a *Authority, opts ...LoopOption) *Loop {
	l := &Loop{
		inbox:        make(chan Msg, 64),
		authority:    a,
		clock:        clockwork.NewRealClock(),
		tickInterval: DefaultTickInterval,
		logger:       zap.NewNop(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes messages and ticks until ctx is cancelled or Shutdown is
// received.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	ticker := l.clock.NewTicker(l.tickInterval)
	defer ticker.Stop()
	last := l.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.Chan():
			// Ticks may coalesce, so elapsed is measured rather than assumed.
			now := l.clock.Now()
			l.authority.Tick(now.Sub(last))
			last = now

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.authority.Join(msg.Conn)

			case Leave:
				l.authority.Leave(msg.ConnID)

			case FromClient:
				// invalid commands are dropped; Authority logs and counts them
				_ = l.authority.Apply(msg.ConnID, msg.Cmd)

			case GetState:
				msg.Reply <- View{
					NumClients: l.authority.Clients(),
					Layout:     l.authority.Layout(),
					State:      l.authority.State(),
				}

			case Shutdown:
				l.logger.Info("authority loop shutting down")
				return nil
			}
		}
	}
}

// Inbox exposes the raw inbox for tests and in-process callers.
func (l *Loop) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless the loop has stopped or ctx ends first.
func (l *Loop) Send(ctx context.Context, m Msg) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the loop for a consistent view of the state.
func (l *Loop) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrLoopStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Loop) Done() <-chan struct{} { return l.done }
