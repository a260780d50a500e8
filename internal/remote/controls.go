package remote

import (
	"math"

	"github.com/DoyleJ11/uki-sync/internal/engine"
)

// ModeSelector mirrors one actuator's mode. Edit is the user path and
// notifies the observer; Sync applies a server value and never does.
type ModeSelector struct {
	modes  int
	value  int
	onEdit func(mode int)
}

func (m *ModeSelector) Value() int { return m.value }

// Edit reports whether the selector has an entry for mode. Unknown modes
// leave the value alone and notify nobody.
func (m *ModeSelector) Edit(mode int) bool {
	if mode < 0 || mode >= m.modes {
		return false
	}
	m.value = mode
	if m.onEdit != nil {
		m.onEdit(mode)
	}
	return true
}

// Sync reports whether the displayed value changed. Modes the selector has
// no entry for are ignored.
func (m *ModeSelector) Sync(mode int) bool {
	if mode < 0 || mode >= m.modes || mode == m.value {
		return false
	}
	m.value = mode
	return true
}

type SpeedSlider struct {
	value  float32
	onEdit func(speed float32)
}

func (s *SpeedSlider) Value() float32 { return s.value }

func (s *SpeedSlider) Edit(speed float32) {
	switch {
	case math.IsNaN(float64(speed)):
		return
	case speed < 0:
		speed = 0
	case speed > 1:
		speed = 1
	}
	s.value = speed
	if s.onEdit != nil {
		s.onEdit(speed)
	}
}

func (s *SpeedSlider) Sync(speed float32) bool {
	if !engine.ValidSpeed(speed) || speed == s.value {
		return false
	}
	s.value = speed
	return true
}

// Panel holds one ModeSelector and one SpeedSlider per actuator.
type Panel struct {
	layout engine.Layout
	modes  []*ModeSelector
	speeds []*SpeedSlider
}

func NewPanel(layout engine.Layout, onMode func(actuator, mode int), onSpeed func(actuator int, speed float32)) *Panel {
	p := &Panel{
		layout: layout,
		modes:  make([]*ModeSelector, len(layout)),
		speeds: make([]*SpeedSlider, len(layout)),
	}
	for i, spec := range layout {
		i := i
		p.modes[i] = &ModeSelector{modes: spec.Modes}
		p.speeds[i] = &SpeedSlider{}
		if onMode != nil {
			p.modes[i].onEdit = func(mode int) { onMode(i, mode) }
		}
		if onSpeed != nil {
			p.speeds[i].onEdit = func(speed float32) { onSpeed(i, speed) }
		}
	}
	return p
}

func (p *Panel) Mode(actuator int) *ModeSelector { return p.modes[actuator] }

func (p *Panel) Speed(actuator int) *SpeedSlider { return p.speeds[actuator] }

// Sync mirrors s into every control and returns how many values changed.
func (p *Panel) Sync(s engine.State) int {
	changed := 0
	for i, a := range s.Actuators {
		if i >= len(p.modes) {
			break
		}
		if p.modes[i].Sync(a.Mode) {
			changed++
		}
		if p.speeds[i].Sync(a.Speed) {
			changed++
		}
	}
	return changed
}

// Values returns the displayed values as a state with no origin.
func (p *Panel) Values() engine.State {
	s := engine.NewState(p.layout)
	for i := range p.layout {
		s.Actuators[i] = engine.ActuatorState{Mode: p.modes[i].Value(), Speed: p.speeds[i].Value()}
	}
	return s
}
