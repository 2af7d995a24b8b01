package alpaca

import (
	"errors"

	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

// Dispatcher routes a device call to the capability of the addressed device and
// maps domain errors onto the two reporting layers.
type Dispatcher struct {
	registry *devices.Registry
	replier  *protocol.Replier
}

func NewDispatcher(registry *devices.Registry, replier *protocol.Replier) *Dispatcher {
	return &Dispatcher{registry: registry, replier: replier}
}

// Dispatch resolves and invokes the capability for req.
//
// Argument errors become *protocol.TransportError. Range and not-implemented errors are
// folded into a reply envelope. Any other error is returned unchanged.
func (d *Dispatcher) Dispatch(req *protocol.Request) (protocol.Reply, error) {
	deviceType, err := types.ParseDeviceType(req.DeviceType)
	if err != nil {
		return protocol.Reply{}, protocol.NewTransportError("Device type %s not implemented", req.DeviceType)
	}

	_, caps, err := d.registry.Lookup(deviceType, req.DeviceNumber)
	if err != nil {
		if errors.Is(err, devices.ErrNotInstalled) {
			return protocol.Reply{}, protocol.NewTransportError("Device %s %d not installed", req.DeviceType, req.DeviceNumber)
		}
		return protocol.Reply{}, protocol.NewTransportError("Device type %s not implemented", req.DeviceType)
	}

	handler, ok := caps[devices.Route{Verb: req.Verb, Method: req.Method}]
	if !ok {
		// Unknown methods are reported like a missing device.
		return protocol.Reply{}, protocol.NewTransportError("Device %s %d not installed", req.DeviceType, req.DeviceNumber)
	}

	reply, err := handler(req)
	if err == nil {
		return reply, nil
	}

	perr, ok := protocol.AsError(err)
	if !ok {
		return protocol.Reply{}, err
	}
	switch perr.Kind {
	case protocol.KindArgument:
		return protocol.Reply{}, protocol.NewTransportError("%s", perr.Message)
	default:
		return d.replier.Fail(req.Params, perr), nil
	}
}
