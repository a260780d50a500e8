// Package authority owns the single authoritative sculpture state.
//
// Authority applies validated commands, stamps the originating connection and
// broadcasts the result to every registered connection. It also guarantees a
// heartbeat broadcast at least once per heartbeat interval so clients can tell
// a dead server from an idle one.
//
// Authority is not safe for concurrent use. Loop drives it from a single
// goroutine: connection callbacks, commands and ticks are all funnelled
// through the loop's inbox.
package authority

import (
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/internal/journal"
	"github.com/DoyleJ11/uki-sync/internal/metrics"
	"github.com/DoyleJ11/uki-sync/internal/registry"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultHeartbeatInterval = 2 * time.Second

type Authority struct {
	layout         engine.Layout
	state          engine.State
	clients        *registry.Registry
	heartbeat      time.Duration
	sinceBroadcast time.Duration

	journal journal.Journal
	metrics *metrics.Metrics
	logger  *zap.Logger
	clock   clockwork.Clock
}

type Option func(*Authority)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *Authority) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

func WithJournal(j journal.Journal) Option {
	return func(a *Authority) { a.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authority) { a.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Authority) { a.logger = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Authority) { a.clock = c }
}

// New creates an Authority holding the start-up state for layout.
func New(layout engine.Layout, clients *registry.Registry, opts ...Option) *Authority {
	a := &Authority{
		layout:    layout,
		state:     engine.NewState(layout),
		clients:   clients,
		heartbeat: DefaultHeartbeatInterval,
		journal:   journal.Nop{},
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New(prometheus.NewRegistry())
	}
	return a
}

func (a *Authority) ApplyModeCommand(conn registry.Conn, actuator, mode int) error {
	return a.Apply(conn.ID(), engine.SetMode(actuator, mode))
}

func (a *Authority) ApplySpeedCommand(conn registry.Conn, actuator int, speed float32) error {
	return a.Apply(conn.ID(), engine.SetSpeed(actuator, speed))
}

// Apply validates cmd and, on success, replaces the state and broadcasts it.
// A rejected command leaves the state untouched and broadcasts nothing.
func (a *Authority) Apply(origin uint32, cmd engine.Command) error {
	newState, err := engine.Apply(a.layout, a.state, origin, cmd)
	if err != nil {
		a.metrics.CommandsRejected.WithLabelValues(fieldLabel(cmd.Field)).Inc()
		a.logger.Debug("command rejected",
			zap.Uint32("connection_id", origin),
			zap.Int("actuator", cmd.Actuator),
			zap.String("field", string(cmd.Field)),
			zap.Error(err))
		return err
	}

	a.state = newState
	name := a.layout[cmd.Actuator].Name
	a.metrics.CommandsApplied.WithLabelValues(name, string(cmd.Field)).Inc()
	a.journal.Record(journal.Entry{
		OriginID:  origin,
		Actuator:  name,
		Field:     string(cmd.Field),
		Mode:      cmd.Mode,
		Speed:     cmd.Speed,
		AppliedAt: a.clock.Now(),
	})

	fields := []zap.Field{zap.Uint32("connection_id", origin), zap.String("actuator", name)}
	if cmd.Field == engine.FieldMode {
		fields = append(fields, zap.Int("mode", cmd.Mode))
	} else {
		fields = append(fields, zap.Float32("speed", cmd.Speed))
	}
	a.logger.Info("command applied", fields...)

	a.broadcast(metrics.ReasonCommand)
	return nil
}

// Tick advances the heartbeat accumulator and broadcasts once it reaches the
// heartbeat interval. It reports whether a broadcast was sent.
func (a *Authority) Tick(elapsed time.Duration) bool {
	a.sinceBroadcast += elapsed
	if a.sinceBroadcast < a.heartbeat {
		return false
	}
	a.broadcast(metrics.ReasonHeartbeat)
	return true
}

// Join registers conn and sends it the current state straight away.
func (a *Authority) Join(conn registry.Conn) {
	a.clients.Register(conn)
	a.metrics.Connections.Set(float64(a.clients.Len()))
	a.logger.Info("client connected", zap.Uint32("connection_id", conn.ID()), zap.Int("clients", a.clients.Len()))

	if err := conn.Send(a.state.Clone()); err != nil {
		a.metrics.SendFailures.Inc()
		a.logger.Debug("initial state send failed", zap.Uint32("connection_id", conn.ID()), zap.Error(err))
		return
	}
	a.metrics.Broadcasts.WithLabelValues(metrics.ReasonJoin).Inc()
}

// Leave unregisters the connection. It reports whether it was registered.
func (a *Authority) Leave(id uint32) bool {
	if !a.clients.Unregister(id) {
		return false
	}
	a.metrics.Connections.Set(float64(a.clients.Len()))
	a.logger.Info("client disconnected", zap.Uint32("connection_id", id), zap.Int("clients", a.clients.Len()))
	return true
}

func (a *Authority) State() engine.State { return a.state.Clone() }

func (a *Authority) Layout() engine.Layout { return a.layout }

func (a *Authority) Clients() int { return a.clients.Len() }

func (a *Authority) broadcast(reason string) {
	_, err := a.clients.Broadcast(a.state)
	if err != nil {
		failures := multierr.Errors(err)
		a.metrics.SendFailures.Add(float64(len(failures)))
		a.logger.Debug("broadcast skipped connections", zap.String("reason", reason), zap.Int("failures", len(failures)), zap.Error(err))
	}
	a.metrics.Broadcasts.WithLabelValues(reason).Inc()
	a.sinceBroadcast = 0
}

func fieldLabel(f engine.Field) string {
	switch f {
	case engine.FieldMode, engine.FieldSpeed:
		return string(f)
	default:
		return "unknown"
	}
}
