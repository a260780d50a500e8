// Package remote is the client side of the sync protocol. Agent keeps a
// mirror of the server state, drives the reconnection state machine and turns
// user edits into commands.
//
// Agent methods are not safe for concurrent use. Run drives them from one
// goroutine; other goroutines talk to it through Send.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultWatchdogTimeout = 5 * time.Second
	DefaultRetryAfter      = 5 * time.Second
	DefaultFrameInterval   = 50 * time.Millisecond
)

var ErrAgentStopped = errors.New("agent stopped")

type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// Transport is the client link. ws.Client implements it.
type Transport interface {
	Start(address string)
	Stop()
	IsConnected() bool
	LocalID() uint32
	Send(cmd engine.Command) error
	Updates() <-chan engine.State
}

type AddressStore interface {
	SetServerAddress(addr string) error
}

type Display interface {
	SetStatus(text string)
	SetDebug(text string)
}

type Msg interface{ isAgentMsg() }

// UserEdit is a change made by the user on a control.
type UserEdit struct {
	Actuator int
	Field    engine.Field
	Mode     int
	Speed    float32
}

func (UserEdit) isAgentMsg() {}

type ChangeAddress struct{ Address string }

func (ChangeAddress) isAgentMsg() {}

type Agent struct {
	layout    engine.Layout
	transport Transport
	address   string
	panel     *Panel
	mirror    engine.State

	prefs   AddressStore
	display Display
	logger  *zap.Logger
	clock   clockwork.Clock

	watchdog      time.Duration
	retryAfter    time.Duration
	frameInterval time.Duration

	state        LinkState
	offlineFor   time.Duration
	sinceContact time.Duration
	packets      int

	inbox chan Msg
	done  chan struct{}
}

type Option func(*Agent)

func WithWatchdogTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.watchdog = d
		}
	}
}

func WithRetryAfter(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.retryAfter = d
		}
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.frameInterval = d
		}
	}
}

func WithPrefs(p AddressStore) Option {
	return func(a *Agent) { a.prefs = p }
}

func WithDisplay(d Display) Option {
	return func(a *Agent) { a.display = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func New(layout engine.Layout, transport Transport, address string, opts ...Option) *Agent {
	a := &Agent{
		layout:        layout,
		transport:     transport,
		address:       address,
		mirror:        engine.NewState(layout),
		display:       nopDisplay{},
		logger:        zap.NewNop(),
		clock:         clockwork.NewRealClock(),
		watchdog:      DefaultWatchdogTimeout,
		retryAfter:    DefaultRetryAfter,
		frameInterval: DefaultFrameInterval,
		state:         Disconnected,
		inbox:         make(chan Msg, 16),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.panel = NewPanel(layout, a.UISetMode, a.UISetSpeed)
	return a
}

// Start issues the first connection attempt.
func (a *Agent) Start() {
	if a.state == Disconnected {
		a.connect()
	}
}

// Update advances the state machine by one frame of elapsed time.
func (a *Agent) Update(elapsed time.Duration) {
	switch a.state {
	case Disconnected:
		a.connect()

	case Connecting:
		if a.transport.IsConnected() {
			a.state = Connected
			a.sinceContact = 0
			a.offlineFor = 0
			a.setStatus(fmt.Sprintf("Online.\nConnected to %s", a.address))
			return
		}
		a.offlineFor += elapsed
		if a.offlineFor >= a.retryAfter {
			a.logger.Info("still offline, retrying", zap.String("address", a.address), zap.Duration("offline", a.offlineFor))
			a.connect()
		}

	case Connected:
		if !a.transport.IsConnected() {
			a.logger.Info("connection lost", zap.String("address", a.address))
			a.state = Disconnected
			a.connect()
			return
		}
		a.sinceContact += elapsed
		if a.sinceContact >= a.watchdog {
			// The link claims to be up but the server has gone quiet.
			a.logger.Warn("no state from server, reconnecting",
				zap.String("address", a.address), zap.Duration("silent_for", a.sinceContact))
			a.state = Disconnected
			a.connect()
		}
	}
}

// SetServerAddress drops any live link, stores addr and starts over.
func (a *Agent) SetServerAddress(addr string) {
	a.logger.Info("server address changed", zap.String("address", addr))
	a.address = addr
	if a.prefs != nil {
		if err := a.prefs.SetServerAddress(addr); err != nil {
			a.logger.Warn("saving server address failed", zap.Error(err))
		}
	}
	a.connect()
}

// HandleStateUpdate applies a broadcast from the server. States this client
// caused leave the controls alone; others are mirrored through Sync so no
// command is sent back.
func (a *Agent) HandleStateUpdate(s engine.State) {
	a.sinceContact = 0
	a.packets++
	a.mirror = s.Clone()

	local := a.transport.LocalID()
	a.display.SetDebug(fmt.Sprintf("this connection: %d\npackets from server: %d\n%s",
		local, a.packets, engine.Describe(a.layout, s)))

	if local != 0 && s.OriginID == local {
		return
	}
	if n := a.panel.Sync(s); n > 0 {
		a.logger.Debug("mirrored remote change", zap.Uint32("origin_id", s.OriginID), zap.Int("changed", n))
	}
}

func (a *Agent) UISetMode(actuator, mode int) {
	a.send(engine.SetMode(actuator, mode))
}

func (a *Agent) UISetSpeed(actuator int, speed float32) {
	a.send(engine.SetSpeed(actuator, speed))
}

func (a *Agent) send(cmd engine.Command) {
	if !a.transport.IsConnected() {
		a.logger.Debug("offline, command dropped", zap.Int("actuator", cmd.Actuator), zap.String("field", string(cmd.Field)))
		return
	}
	if err := a.transport.Send(cmd); err != nil {
		a.logger.Debug("send failed", zap.Int("actuator", cmd.Actuator), zap.Error(err))
	}
}

// Run drives the agent until ctx is cancelled: frames on a ticker, state
// updates from the transport and messages from Send.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)
	defer a.transport.Stop()

	a.Start()
	ticker := a.clock.NewTicker(a.frameInterval)
	defer ticker.Stop()
	last := a.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-a.transport.Updates():
			a.HandleStateUpdate(s)

		case m := <-a.inbox:
			switch msg := m.(type) {
			case UserEdit:
				a.applyEdit(msg)
			case ChangeAddress:
				a.SetServerAddress(msg.Address)
			}

		case <-ticker.Chan():
			now := a.clock.Now()
			a.Update(now.Sub(last))
			last = now
		}
	}
}

func (a *Agent) applyEdit(e UserEdit) {
	if e.Actuator < 0 || e.Actuator >= len(a.layout) {
		a.logger.Debug("edit for unknown actuator", zap.Int("actuator", e.Actuator))
		return
	}
	switch e.Field {
	case engine.FieldMode:
		if !a.panel.Mode(e.Actuator).Edit(e.Mode) {
			a.logger.Debug("edit for unknown mode", zap.Int("actuator", e.Actuator), zap.Int("mode", e.Mode))
		}
	case engine.FieldSpeed:
		a.panel.Speed(e.Actuator).Edit(e.Speed)
	}
}

func (a *Agent) Send(ctx context.Context, m Msg) error {
	select {
	case <-a.done:
		return ErrAgentStopped
	default:
	}
	select {
	case a.inbox <- m:
		return nil
	case <-a.done:
		return ErrAgentStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) Done() <-chan struct{} { return a.done }

func (a *Agent) State() LinkState { return a.state }

func (a *Agent) Address() string { return a.address }

func (a *Agent) Panel() *Panel { return a.panel }

// Mirror is the last state received from the server.
func (a *Agent) Mirror() engine.State { return a.mirror.Clone() }

func (a *Agent) Packets() int { return a.packets }

// connect tears down whatever link exists and starts a fresh attempt.
func (a *Agent) connect() {
	a.transport.Stop()
	a.transport.Start(a.address)
	a.state = Connecting
	a.offlineFor = 0
	a.sinceContact = 0
	a.setStatus(fmt.Sprintf("Offline.\nTrying to connect to %s...", a.address))
}

func (a *Agent) setStatus(text string) {
	a.logger.Debug("status", zap.String("status", text))
	a.display.SetStatus(text)
}

type nopDisplay struct{}

func (nopDisplay) SetStatus(string) {}
func (nopDisplay) SetDebug(string)  {}
