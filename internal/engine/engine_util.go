package engine

import (
	"fmt"
	"strings"
)

// NewState returns the start-up state: every actuator at mode 0, speed 0,
// and no origin.
func NewState(layout Layout) State {
	return State{
		OriginID:  0,
		Actuators: make([]ActuatorState, len(layout)),
	}
}

// Describe renders the state for logs and status displays,
// e.g. "origin=3 leg=2/0.50 wing=0/0.00".
func Describe(layout Layout, s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "origin=%d", s.OriginID)
	for i, a := range s.Actuators {
		name := fmt.Sprintf("actuator%d", i)
		if i < len(layout) {
			name = layout[i].Name
		}
		fmt.Fprintf(&b, " %s=%d/%.2f", name, a.Mode, a.Speed)
	}
	return b.String()
}
