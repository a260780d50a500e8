package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/uki-sync/internal/engine"
)

var ErrQuit = errors.New("quit")

// ParseLine turns one line typed at the remote's prompt into a message:
//
//	mode <actuator> <n>
//	speed <actuator> <0..1>
//	address <host:port>
//	quit
//
// Actuators are named ("leg") or indexed ("0"). An empty line yields nil.
func ParseLine(layout engine.Layout, line string) (Msg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch strings.ToLower(fields[0]) {
	case "mode", "speed":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: %s <actuator> <value>", fields[0])
		}
		idx, err := actuatorIndex(layout, fields[1])
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(fields[0], "mode") {
			mode, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("mode %q: %w", fields[2], err)
			}
			if spec := layout[idx]; !spec.ValidMode(mode) {
				return nil, fmt.Errorf("%s has modes 0..%d", spec.Name, spec.Modes-1)
			}
			return UserEdit{Actuator: idx, Field: engine.FieldMode, Mode: mode}, nil
		}
		speed, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return nil, fmt.Errorf("speed %q: %w", fields[2], err)
		}
		return UserEdit{Actuator: idx, Field: engine.FieldSpeed, Speed: float32(speed)}, nil

	case "address", "connect":
		if len(fields) != 2 {
			return nil, errors.New("usage: address <host:port>")
		}
		return ChangeAddress{Address: fields[1]}, nil

	case "quit", "exit":
		return nil, ErrQuit

	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

func actuatorIndex(layout engine.Layout, s string) (int, error) {
	if i := layout.Index(s); i >= 0 {
		return i, nil
	}
	if i, err := strconv.Atoi(s); err == nil && i >= 0 && i < len(layout) {
		return i, nil
	}
	return 0, fmt.Errorf("unknown actuator %q (have %s)", s, strings.Join(layout.Names(), ", "))
}
