package devices

import (
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

type EventKind string

const (
	EventSwitchValue EventKind = "switch_value"
	EventSwitchName  EventKind = "switch_name"
	EventConnected   EventKind = "connected"
)

// ChangeEvent reports a state change of an installed device.
// Channel is -1 for device-level changes.
type ChangeEvent struct {
	Kind         EventKind        `json:"kind"`
	DeviceType   types.DeviceType `json:"device_type"`
	DeviceNumber int              `json:"device_number"`
	Channel      int              `json:"channel"`
	Name         string           `json:"name,omitempty"`
	Value        any              `json:"value"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Observer receives change events. It is called synchronously and must not block.
type Observer func(ChangeEvent)

// FanOut combines observers into one.
func FanOut(observers ...Observer) Observer {
	return func(ev ChangeEvent) {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		for _, o := range observers {
			if o != nil {
				o(ev)
			}
		}
	}
}
