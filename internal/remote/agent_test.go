package remote

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	localID   uint32
	starts    []string
	stops     int
	sent      []engine.Command
	updates   chan engine.State
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan engine.State, 8)}
}

func (f *fakeTransport) Start(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, address)
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) LocalID() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localID
}

func (f *fakeTransport) Send(cmd engine.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Updates() <-chan engine.State { return f.updates }

func (f *fakeTransport) up(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.localID = id
}

func (f *fakeTransport) down() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.localID = 0
}

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeTransport) sentCommands() []engine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Command(nil), f.sent...)
}

type memPrefs struct{ addr string }

func (m *memPrefs) SetServerAddress(addr string) error {
	m.addr = addr
	return nil
}

// connectedAgent returns an agent that has completed its first connection
// as connection id.
func connectedAgent(t *testing.T, id uint32, opts ...Option) (*Agent, *fakeTransport, *Console) {
	t.Helper()
	tr := newFakeTransport()
	console := NewConsole(&bytes.Buffer{}, false)
	opts = append([]Option{WithDisplay(console)}, opts...)
	a := New(engine.DualLayout, tr, "uki.local:7777", opts...)

	a.Start()
	require.Equal(t, Connecting, a.State())
	tr.up(id)
	a.Update(50 * time.Millisecond)
	require.Equal(t, Connected, a.State())
	return a, tr, console
}

func TestAgent_StartConnects(t *testing.T) {
	tr := newFakeTransport()
	console := NewConsole(&bytes.Buffer{}, false)
	a := New(engine.DualLayout, tr, "uki.local:7777", WithDisplay(console))
	assert.Equal(t, Disconnected, a.State())

	a.Start()
	assert.Equal(t, Connecting, a.State())
	assert.Equal(t, []string{"uki.local:7777"}, tr.starts)
	assert.Contains(t, console.Status(), "Offline.")

	tr.up(1)
	a.Update(10 * time.Millisecond)
	assert.Equal(t, Connected, a.State())
	assert.Contains(t, console.Status(), "Online.")
}

func TestAgent_UnknownModeEditSendsNothing(t *testing.T) {
	a, tr, _ := connectedAgent(t, 3)

	a.applyEdit(UserEdit{Actuator: 0, Field: engine.FieldMode, Mode: 9})
	assert.Empty(t, tr.sentCommands())
	assert.Equal(t, 0, a.Panel().Mode(0).Value())

	a.applyEdit(UserEdit{Actuator: 1, Field: engine.FieldMode, Mode: 4})
	assert.Equal(t, []engine.Command{engine.SetMode(1, 4)}, tr.sentCommands())
}

func TestAgent_EchoSuppression(t *testing.T) {
	a, tr, _ := connectedAgent(t, 7)
	a.Panel().Mode(0).Edit(2)
	require.Len(t, tr.sentCommands(), 1)

	// the server echoes our own change back with something else in it too
	s := engine.NewState(engine.DualLayout)
	s.OriginID = 7
	s.Actuators[0].Mode = 2
	s.Actuators[1].Mode = 4
	a.HandleStateUpdate(s)

	assert.Len(t, tr.sentCommands(), 1, "no command sent on echo")
	assert.Equal(t, 0, a.Panel().Mode(1).Value(), "no control touched on echo")
	assert.Equal(t, 4, a.Mirror().Actuators[1].Mode, "mirror still tracks the server")
}

func TestAgent_MirrorsForeignStateWithoutSending(t *testing.T) {
	a, tr, console := connectedAgent(t, 7)

	s := engine.NewState(engine.DualLayout)
	s.OriginID = 9
	s.Actuators[0] = engine.ActuatorState{Mode: 3, Speed: 0.4}
	s.Actuators[1] = engine.ActuatorState{Mode: 1, Speed: 0.9}
	a.HandleStateUpdate(s)

	assert.Empty(t, tr.sentCommands())
	assert.Equal(t, s.Actuators, a.Panel().Values().Actuators)
	assert.Equal(t, 1, a.Packets())
	assert.Contains(t, console.Debug(), "packets from server: 1")
	assert.Contains(t, console.Debug(), "this connection: 7")
}

func TestAgent_TwoClientScenario(t *testing.T) {
	agentA, trA, _ := connectedAgent(t, 1)
	agentB, trB, _ := connectedAgent(t, 2)

	agentA.Panel().Mode(0).Edit(2)
	require.Equal(t, []engine.Command{engine.SetMode(0, 2)}, trA.sentCommands())

	// server applies A's command and broadcasts to both
	s := engine.NewState(engine.DualLayout)
	s.OriginID = 1
	s.Actuators[0].Mode = 2
	agentA.HandleStateUpdate(s)
	agentB.HandleStateUpdate(s)

	assert.Len(t, trA.sentCommands(), 1)
	assert.Equal(t, 2, agentA.Panel().Mode(0).Value())
	assert.Empty(t, trB.sentCommands())
	assert.Equal(t, 2, agentB.Panel().Mode(0).Value())
}

func TestAgent_WatchdogReconnects(t *testing.T) {
	a, tr, _ := connectedAgent(t, 3)
	starts := tr.startCount()

	for i := 0; i < 49; i++ {
		a.Update(100 * time.Millisecond)
	}
	assert.Equal(t, Connected, a.State())

	// contact resets the watchdog
	a.HandleStateUpdate(engine.NewState(engine.DualLayout))
	for i := 0; i < 49; i++ {
		a.Update(100 * time.Millisecond)
	}
	assert.Equal(t, Connected, a.State())
	assert.Equal(t, starts, tr.startCount())

	a.Update(100 * time.Millisecond)
	assert.Equal(t, Connecting, a.State())
	assert.Equal(t, starts+1, tr.startCount())
	assert.False(t, tr.IsConnected(), "transport was torn down")
}

func TestAgent_OfflineRetry(t *testing.T) {
	tr := newFakeTransport()
	a := New(engine.DualLayout, tr, "uki.local:7777")
	a.Start()
	require.Equal(t, 1, tr.startCount())

	for i := 0; i < 49; i++ {
		a.Update(100 * time.Millisecond)
	}
	assert.Equal(t, 1, tr.startCount())

	a.Update(100 * time.Millisecond)
	assert.Equal(t, 2, tr.startCount())
	assert.Equal(t, Connecting, a.State())

	// the timer restarted with the new attempt
	a.Update(4 * time.Second)
	assert.Equal(t, 2, tr.startCount())
}

func TestAgent_LinkDownRetriesSameFrame(t *testing.T) {
	a, tr, console := connectedAgent(t, 3)
	starts := tr.startCount()

	tr.down()
	a.Update(50 * time.Millisecond)
	assert.Equal(t, Connecting, a.State())
	assert.Equal(t, starts+1, tr.startCount())
	assert.Contains(t, console.Status(), "Offline.")
}

func TestAgent_CommandsDroppedWhenOffline(t *testing.T) {
	tr := newFakeTransport()
	a := New(engine.DualLayout, tr, "uki.local:7777")
	a.Start()

	a.UISetMode(0, 1)
	a.UISetSpeed(1, 0.5)
	assert.Empty(t, tr.sentCommands())
}

func TestAgent_SetServerAddress(t *testing.T) {
	prefs := &memPrefs{}
	a, tr, _ := connectedAgent(t, 3, WithPrefs(prefs))
	stops := tr.stops

	a.SetServerAddress("10.0.0.9:7777")
	assert.Equal(t, Connecting, a.State())
	assert.Equal(t, "10.0.0.9:7777", a.Address())
	assert.Equal(t, "10.0.0.9:7777", prefs.addr)
	assert.Equal(t, "10.0.0.9:7777", tr.starts[len(tr.starts)-1])
	assert.Greater(t, tr.stops, stops)

	// works the same while still connecting
	a.SetServerAddress("10.0.0.10:7777")
	assert.Equal(t, Connecting, a.State())
	assert.Equal(t, "10.0.0.10:7777", tr.starts[len(tr.starts)-1])
}

func TestAgent_Run(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := newFakeTransport()
	console := NewConsole(&bytes.Buffer{}, false)
	a := New(engine.DualLayout, tr, "uki.local:7777",
		WithClock(clock), WithFrameInterval(50*time.Millisecond), WithDisplay(console))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return tr.startCount() == 1 }, time.Second, 5*time.Millisecond)
	tr.up(5)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool { return console.Status() == "Online.\nConnected to uki.local:7777" }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Send(ctx, UserEdit{Actuator: 1, Field: engine.FieldSpeed, Speed: 0.3}))
	require.Eventually(t, func() bool { return len(tr.sentCommands()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.SetSpeed(1, 0.3), tr.sentCommands()[0])

	s := engine.NewState(engine.DualLayout)
	s.OriginID = 8
	s.Actuators[0].Mode = 3
	tr.updates <- s
	require.Eventually(t, func() bool {
		return strings.Contains(console.Debug(), "packets from server: 1")
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.ErrorIs(t, a.Send(context.Background(), ChangeAddress{Address: "x"}), ErrAgentStopped)
	assert.Equal(t, 3, a.Panel().Mode(0).Value())
	assert.Len(t, tr.sentCommands(), 1, "mirroring sent nothing")
}
