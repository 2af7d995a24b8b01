package websocket

import (
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Device-related messages
	MessageTypeSwitchValue     MessageType = "switch_value"
	MessageTypeSwitchName      MessageType = "switch_name"
	MessageTypeDeviceConnected MessageType = "device_connected"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Client requests
	MessageTypeSubscribe  MessageType = "subscribe"
	MessageTypeSubscribed MessageType = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// deviceType routes device messages to subscribed clients; empty for system messages.
	deviceType types.DeviceType
}

// DeviceEventData is the payload of device messages.
type DeviceEventData struct {
	DeviceType   types.DeviceType `json:"device_type"`
	DeviceNumber int              `json:"device_number"`
	Channel      int              `json:"channel"`
	Name         string           `json:"name,omitempty"`
	Value        interface{}      `json:"value"`
}

// SystemStatusData represents a lifecycle state change.
type SystemStatusData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// SubscribeRequest limits the device messages a client receives. An empty list means all.
type SubscribeRequest struct {
	Type        MessageType        `json:"type"`
	DeviceTypes []types.DeviceType `json:"device_types"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewEventMessage converts a device change event.
func NewEventMessage(ev devices.ChangeEvent) Message {
	msgType := MessageTypeSwitchValue
	switch ev.Kind {
	case devices.EventSwitchName:
		msgType = MessageTypeSwitchName
	case devices.EventConnected:
		msgType = MessageTypeDeviceConnected
	}

	msg := NewMessage(msgType, DeviceEventData{
		DeviceType:   ev.DeviceType,
		DeviceNumber: ev.DeviceNumber,
		Channel:      ev.Channel,
		Name:         ev.Name,
		Value:        ev.Value,
	})
	if !ev.Timestamp.IsZero() {
		msg.Timestamp = ev.Timestamp
	}
	msg.deviceType = ev.DeviceType
	return msg
}

func NewSystemStatusMessage(newState, previousState string) Message {
	return NewMessage(MessageTypeSystemStatus, SystemStatusData{
		State:    newState,
		Previous: previousState,
	})
}
