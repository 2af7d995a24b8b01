package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"go.uber.org/zap"
)

var (
	ErrUnknownType  = errors.New("devices: unknown device type")
	ErrNotInstalled = errors.New("devices: device not installed")
	ErrSlotOccupied = errors.New("devices: slot already occupied")
	ErrNotDense     = errors.New("devices: device numbers must be dense")
)

type installed struct {
	device Device
	caps   Capabilities
}

// Registry holds the installed devices per device type, ordered by device number.
// Capabilities are resolved once at install time. Devices are never removed.
type Registry struct {
	replier *protocol.Replier
	devices map[types.DeviceType][]installed
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewRegistry(replier *protocol.Replier, logger *zap.Logger) *Registry {
	devices := make(map[types.DeviceType][]installed, len(types.AllDeviceTypes))
	for _, t := range types.AllDeviceTypes {
		devices[t] = nil
	}
	return &Registry{
		replier: replier,
		devices: devices,
		logger:  logger,
	}
}

// Install places device at number within its type. The number must be the next free slot.
func (r *Registry) Install(deviceType types.DeviceType, number int, device Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots, ok := r.devices[deviceType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, deviceType)
	}
	if number < len(slots) && number >= 0 {
		return fmt.Errorf("%w: %s %d", ErrSlotOccupied, deviceType, number)
	}
	if number != len(slots) {
		return fmt.Errorf("%w: %s %d, next free slot is %d", ErrNotDense, deviceType, number, len(slots))
	}

	device.Attach(number, r.replier)
	r.devices[deviceType] = append(slots, installed{device: device, caps: device.Capabilities()})

	info := device.Info()
	r.logger.Info("Device installed",
		zap.String("type", string(deviceType)),
		zap.Int("number", number),
		zap.String("name", info.Name),
		zap.String("unique_id", info.UniqueID))

	return nil
}

// Lookup returns the device and its dispatch table.
func (r *Registry) Lookup(deviceType types.DeviceType, number int) (Device, Capabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots, ok := r.devices[deviceType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownType, deviceType)
	}
	if number < 0 || number >= len(slots) {
		return nil, nil, fmt.Errorf("%w: %s %d", ErrNotInstalled, deviceType, number)
	}

	entry := slots[number]
	return entry.device, entry.caps, nil
}

// ListConfigured returns every installed device in type order.
func (r *Registry) ListConfigured() []types.ConfiguredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configured := make([]types.ConfiguredDevice, 0)
	for _, t := range types.AllDeviceTypes {
		for number, entry := range r.devices[t] {
			info := entry.device.Info()
			configured = append(configured, types.ConfiguredDevice{
				DeviceName:   info.Name,
				DeviceType:   t,
				DeviceNumber: number,
				UniqueID:     info.UniqueID,
			})
		}
	}

	return configured
}

// Switches returns the installed switch devices.
func (r *Registry) Switches() []*Switch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switches := make([]*Switch, 0, len(r.devices[types.DeviceTypeSwitch]))
	for _, entry := range r.devices[types.DeviceTypeSwitch] {
		if s, ok := entry.device.(*Switch); ok {
			switches = append(switches, s)
		}
	}
	return switches
}

// Count returns the number of installed devices and how many of them are connected.
func (r *Registry) Count() (total, connected int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, slots := range r.devices {
		for _, entry := range slots {
			total++
			if entry.device.Info().Connected {
				connected++
			}
		}
	}
	return total, connected
}

// CloseAll releases device resources such as I/O bindings.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, slots := range r.devices {
		for _, entry := range slots {
			closer, ok := entry.device.(interface{ Close() error })
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				r.logger.Error("Failed to close device",
					zap.String("device", entry.device.Info().Name),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
