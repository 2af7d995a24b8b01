package interfaces

import (
	"context"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	DeviceCount      int    `json:"device_count"`
	ConnectedDevices int    `json:"connected_devices"`
	EventClients     int    `json:"event_clients"`
	DiscoveryEnabled bool   `json:"discovery_enabled"`
	MQTTEnabled      bool   `json:"mqtt_enabled"`
}

type LifecycleManager interface {
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
