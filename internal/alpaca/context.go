package alpaca

import (
	"sync/atomic"

	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

// ServerContext is the process-wide state shared by the HTTP surface and the discovery responder.
type ServerContext struct {
	description types.ServerDescription
	apiVersions []int

	Replier    *protocol.Replier
	Registry   *devices.Registry
	Dispatcher *Dispatcher

	alpacaPort    atomic.Int32
	discoveryPort atomic.Int32
}

// NewServerContext wires the reply builder, registry and dispatcher around one transaction counter.
func NewServerContext(description types.ServerDescription, replier *protocol.Replier, registry *devices.Registry) *ServerContext {
	return &ServerContext{
		description: description,
		apiVersions: []int{1},
		Replier:     replier,
		Registry:    registry,
		Dispatcher:  NewDispatcher(registry, replier),
	}
}

func (c *ServerContext) Description() types.ServerDescription {
	return c.description
}

func (c *ServerContext) APIVersions() []int {
	out := make([]int, len(c.apiVersions))
	copy(out, c.apiVersions)
	return out
}

func (c *ServerContext) ConfiguredDevices() []types.ConfiguredDevice {
	return c.Registry.ListConfigured()
}

// AlpacaPort is the HTTP port advertised to discovery clients.
func (c *ServerContext) AlpacaPort() int {
	return int(c.alpacaPort.Load())
}

func (c *ServerContext) SetAlpacaPort(port int) {
	c.alpacaPort.Store(int32(port))
}

func (c *ServerContext) DiscoveryPort() int {
	return int(c.discoveryPort.Load())
}

func (c *ServerContext) SetDiscoveryPort(port int) {
	c.discoveryPort.Store(int32(port))
}
