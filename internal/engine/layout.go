package engine

import (
	"fmt"
	"strings"
)

type ActuatorSpec struct {
	Name  string
	Modes int
}

func (a ActuatorSpec) ValidMode(mode int) bool {
	return mode >= 0 && mode < a.Modes
}

// Layout lists the actuators of a sculpture in wire order.
type Layout []ActuatorSpec

var DualLayout = Layout{
	{Name: "leg", Modes: 4},
	{Name: "wing", Modes: 5},
}

var SingleLayout = Layout{
	{Name: "uki", Modes: 4},
}

func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dual":
		return DualLayout, nil
	case "single":
		return SingleLayout, nil
	default:
		return nil, fmt.Errorf("unknown layout %q", name)
	}
}

// Index returns the position of the named actuator, or -1.
func (l Layout) Index(name string) int {
	for i, a := range l {
		if strings.EqualFold(a.Name, name) {
			return i
		}
	}
	return -1
}

func (l Layout) Names() []string {
	names := make([]string, len(l))
	for i, a := range l {
		names[i] = a.Name
	}
	return names
}
