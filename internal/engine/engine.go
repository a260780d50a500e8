package engine

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidRange = errors.New("value out of range")
var ErrUnknownActuator = fmt.Errorf("unknown actuator: %w", ErrInvalidRange)
var ErrUnsupportedCommand = errors.New("unsupported command")

type Field string

const (
	FieldMode  Field = "mode"
	FieldSpeed Field = "speed"
)

type ActuatorState struct {
	Mode  int
	Speed float32
}

// State is the full status of the sculpture. OriginID is the connection that
// last changed any field; zero means no client has changed anything yet.
type State struct {
	OriginID  uint32
	Actuators []ActuatorState
}

// Clone returns a deep copy so callers never share the actuator slice.
func (s State) Clone() State {
	out := State{OriginID: s.OriginID, Actuators: make([]ActuatorState, len(s.Actuators))}
	copy(out.Actuators, s.Actuators)
	return out
}

// Command is the single tagged form SetActuatorField(actuator, field, value).
// Only the value matching Field is read.
type Command struct {
	Actuator int
	Field    Field
	Mode     int
	Speed    float32
}

func SetMode(actuator, mode int) Command {
	return Command{Actuator: actuator, Field: FieldMode, Mode: mode}
}

func SetSpeed(actuator int, speed float32) Command {
	return Command{Actuator: actuator, Field: FieldSpeed, Speed: speed}
}

// Apply validates cmd against the layout and returns the new state stamped
// with origin. On error the input state is returned untouched.
func Apply(layout Layout, s State, origin uint32, cmd Command) (State, error) {
	if cmd.Actuator < 0 || cmd.Actuator >= len(layout) || cmd.Actuator >= len(s.Actuators) {
		return s, ErrUnknownActuator
	}
	spec := layout[cmd.Actuator]

	newState := s.Clone()
	switch cmd.Field {
	case FieldMode:
		if !spec.ValidMode(cmd.Mode) {
			return s, fmt.Errorf("%s mode %d: %w", spec.Name, cmd.Mode, ErrInvalidRange)
		}
		newState.Actuators[cmd.Actuator].Mode = cmd.Mode

	case FieldSpeed:
		if !ValidSpeed(cmd.Speed) {
			return s, fmt.Errorf("%s speed %v: %w", spec.Name, cmd.Speed, ErrInvalidRange)
		}
		newState.Actuators[cmd.Actuator].Speed = cmd.Speed

	default:
		return s, ErrUnsupportedCommand
	}

	newState.OriginID = origin
	return newState, nil
}

// ValidSpeed reports whether speed is inside the normalized [0, 1] range.
// NaN is never valid.
func ValidSpeed(speed float32) bool {
	f := float64(speed)
	if math.IsNaN(f) {
		return false
	}
	return f >= 0 && f <= 1
}
