package remote

import (
	"bytes"
	"math"
	"testing"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edit struct {
	actuator int
	mode     int
	speed    float32
}

func recordingPanel() (*Panel, *[]edit) {
	var edits []edit
	p := NewPanel(engine.DualLayout,
		func(actuator, mode int) { edits = append(edits, edit{actuator: actuator, mode: mode}) },
		func(actuator int, speed float32) { edits = append(edits, edit{actuator: actuator, speed: speed}) },
	)
	return p, &edits
}

func TestPanel_EditNotifies(t *testing.T) {
	p, edits := recordingPanel()

	p.Mode(1).Edit(4)
	p.Speed(0).Edit(0.25)
	require.Len(t, *edits, 2)
	assert.Equal(t, edit{actuator: 1, mode: 4}, (*edits)[0])
	assert.Equal(t, edit{actuator: 0, speed: 0.25}, (*edits)[1])
}

func TestPanel_EditRejectsUnknownMode(t *testing.T) {
	p, edits := recordingPanel()

	require.True(t, p.Mode(0).Edit(2))
	assert.False(t, p.Mode(0).Edit(9))
	assert.False(t, p.Mode(0).Edit(4))
	assert.False(t, p.Mode(0).Edit(-2))
	assert.Equal(t, 2, p.Mode(0).Value())

	require.Len(t, *edits, 1)
	assert.Equal(t, edit{actuator: 0, mode: 2}, (*edits)[0])
}

func TestPanel_SpeedEditClampsToSliderBounds(t *testing.T) {
	p, edits := recordingPanel()

	p.Speed(1).Edit(1.7)
	assert.Equal(t, float32(1), p.Speed(1).Value())
	p.Speed(1).Edit(-0.5)
	assert.Equal(t, float32(0), p.Speed(1).Value())
	p.Speed(1).Edit(float32(math.NaN()))
	assert.Equal(t, float32(0), p.Speed(1).Value())

	assert.Len(t, *edits, 2, "NaN is not an edit")
}

func TestPanel_SyncNeverNotifies(t *testing.T) {
	p, edits := recordingPanel()

	s := engine.State{OriginID: 4, Actuators: []engine.ActuatorState{{Mode: 2, Speed: 0.5}, {Mode: 4, Speed: 1}}}
	assert.Equal(t, 4, p.Sync(s))
	assert.Empty(t, *edits)
	assert.Equal(t, s.Actuators, p.Values().Actuators)

	assert.Equal(t, 0, p.Sync(s), "unchanged values are not counted")
}

func TestPanel_SyncIgnoresUnknownValues(t *testing.T) {
	p, _ := recordingPanel()
	p.Mode(0).Edit(1)

	s := engine.State{Actuators: []engine.ActuatorState{{Mode: 7, Speed: 3}, {Mode: 2}, {Mode: 1}}}
	assert.Equal(t, 1, p.Sync(s))
	assert.Equal(t, 1, p.Mode(0).Value())
	assert.Equal(t, float32(0), p.Speed(0).Value())
	assert.Equal(t, 2, p.Mode(1).Value())
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.SetStatus("Offline.\nTrying to connect to a:1...")
	c.SetStatus("Offline.\nTrying to connect to a:1...")
	c.SetDebug("packets from server: 1")
	assert.Equal(t, "[status] Offline. | Trying to connect to a:1...\n", buf.String())
	assert.Equal(t, "packets from server: 1", c.Debug())

	buf.Reset()
	verbose := NewConsole(&buf, true)
	verbose.SetDebug("x")
	assert.Equal(t, "[debug] x\n", buf.String())

	buf.Reset()
	verbose.Println("unknown command \"dance\"")
	assert.Equal(t, "unknown command \"dance\"\n", buf.String())
}
