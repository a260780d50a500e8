package types

import "github.com/DoyleJ11/uki-sync/internal/engine"

// StateSnapshot:
//
//	origin_id: number  // 0 until a client changes something
//	actuators: [{ mode: number, speed: number }]  // layout order
type StateSnapshot struct {
	OriginID  uint32             `json:"origin_id"`
	Actuators []ActuatorSnapshot `json:"actuators"`
}

type ActuatorSnapshot struct {
	Mode  int     `json:"mode"`
	Speed float32 `json:"speed"`
}

func FromState(s engine.State) StateSnapshot {
	out := StateSnapshot{OriginID: s.OriginID, Actuators: make([]ActuatorSnapshot, len(s.Actuators))}
	for i, a := range s.Actuators {
		out.Actuators[i] = ActuatorSnapshot{Mode: a.Mode, Speed: a.Speed}
	}
	return out
}

func (s StateSnapshot) ToState() engine.State {
	out := engine.State{OriginID: s.OriginID, Actuators: make([]engine.ActuatorState, len(s.Actuators))}
	for i, a := range s.Actuators {
		out.Actuators[i] = engine.ActuatorState{Mode: a.Mode, Speed: a.Speed}
	}
	return out
}
