package types

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/uki-sync/internal/engine"
)

// Message types on the wire.
const (
	TypeSetActuatorField = "SetActuatorField"
	TypeWelcome          = "Welcome"
	TypeStateUpdate      = "StateUpdate"
	TypeError            = "Error"
)

var ErrUnknownMessage = errors.New("unknown message type")

// ClientMessage is sent client -> server.
// Only the value named by Field is meaningful.
type ClientMessage struct {
	Type     string  `json:"type"`
	Actuator int     `json:"actuator"`
	Field    string  `json:"field"`
	Mode     int     `json:"mode,omitempty"`
	Speed    float32 `json:"speed,omitempty"`
}

// ServerMessage is sent server -> client: "Welcome" | "StateUpdate" | "Error".
type ServerMessage struct {
	Type         string         `json:"type"`
	ConnectionID uint32         `json:"connection_id,omitempty"`
	State        *StateSnapshot `json:"state,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func FromCommand(cmd engine.Command) ClientMessage {
	return ClientMessage{
		Type:     TypeSetActuatorField,
		Actuator: cmd.Actuator,
		Field:    string(cmd.Field),
		Mode:     cmd.Mode,
		Speed:    cmd.Speed,
	}
}

// ToCommand converts a decoded client message. Range checks are left to the
// engine; only the message shape is validated here.
func (m ClientMessage) ToCommand() (engine.Command, error) {
	if m.Type != TypeSetActuatorField {
		return engine.Command{}, fmt.Errorf("%q: %w", m.Type, ErrUnknownMessage)
	}
	switch engine.Field(m.Field) {
	case engine.FieldMode:
		return engine.SetMode(m.Actuator, m.Mode), nil
	case engine.FieldSpeed:
		return engine.SetSpeed(m.Actuator, m.Speed), nil
	default:
		return engine.Command{}, fmt.Errorf("field %q: %w", m.Field, engine.ErrUnsupportedCommand)
	}
}

func Welcome(id uint32) ServerMessage {
	return ServerMessage{Type: TypeWelcome, ConnectionID: id}
}

func StateUpdate(s engine.State) ServerMessage {
	snap := FromState(s)
	return ServerMessage{Type: TypeStateUpdate, State: &snap}
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Error: msg}
}
