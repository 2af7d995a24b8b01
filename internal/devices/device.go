package devices

import (
	"net/http"
	"sync"

	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/google/uuid"
)

// Route identifies a capability by HTTP verb and lower-case method name.
type Route struct {
	Verb   string
	Method string
}

func Get(method string) Route { return Route{Verb: http.MethodGet, Method: method} }
func Put(method string) Route { return Route{Verb: http.MethodPut, Method: method} }

// Handler executes one capability and returns its reply envelope.
// Domain failures are returned as *protocol.Error.
type Handler func(req *protocol.Request) (protocol.Reply, error)

// Capabilities is the dispatch table of a device.
type Capabilities map[Route]Handler

// Device is an installable Alpaca device.
type Device interface {
	Info() Info
	Capabilities() Capabilities
	// Attach is called once at install time with the slot number and the reply builder.
	Attach(number int, replier *protocol.Replier)
	SetupPage() string
}

// Info is the descriptive metadata of a device.
type Info struct {
	Type             types.DeviceType
	Number           int
	Name             string
	Description      string
	DriverInfo       string
	DriverVersion    string
	InterfaceVersion int
	UniqueID         string
	Connected        bool
}

// Options configures a Base. Empty fields fall back to defaults.
type Options struct {
	Name             string
	Description      string
	DriverInfo       string
	DriverVersion    string
	InterfaceVersion int
	UniqueID         string
}

// Base implements the capability set shared by every device variant.
type Base struct {
	deviceType       types.DeviceType
	number           int
	name             string
	description      string
	driverInfo       string
	driverVersion    string
	interfaceVersion int
	uniqueID         string

	mu        sync.RWMutex
	connected bool
	replier   *protocol.Replier
	observer  Observer
}

// NewBase builds the common part of a device.
func NewBase(deviceType types.DeviceType, opts Options) *Base {
	b := &Base{
		deviceType:       deviceType,
		name:             opts.Name,
		description:      opts.Description,
		driverInfo:       opts.DriverInfo,
		driverVersion:    opts.DriverVersion,
		interfaceVersion: opts.InterfaceVersion,
		uniqueID:         opts.UniqueID,
	}
	if b.description == "" {
		b.description = "No description"
	}
	if b.driverInfo == "" {
		b.driverInfo = "No driver info"
	}
	if b.driverVersion == "" {
		b.driverVersion = "0"
	}
	if b.uniqueID == "" {
		b.uniqueID = uuid.NewString()
	}
	return b
}

func (b *Base) Attach(number int, replier *protocol.Replier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.number = number
	b.replier = replier
}

// SetObserver registers the receiver of change events.
func (b *Base) SetObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

func (b *Base) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Info{
		Type:             b.deviceType,
		Number:           b.number,
		Name:             b.name,
		Description:      b.description,
		DriverInfo:       b.driverInfo,
		DriverVersion:    b.driverVersion,
		InterfaceVersion: b.interfaceVersion,
		UniqueID:         b.uniqueID,
		Connected:        b.connected,
	}
}

func (b *Base) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Base) SetupPage() string {
	return "Setup page"
}

func (b *Base) Capabilities() Capabilities {
	return Capabilities{
		Get("connected"):        b.getConnected,
		Put("connected"):        b.putConnected,
		Get("name"):             b.getName,
		Get("description"):      b.getDescription,
		Get("driverinfo"):       b.getDriverInfo,
		Get("driverversion"):    b.getDriverVersion,
		Get("interfaceversion"): b.getInterfaceVersion,
		Get("supportedactions"): b.getSupportedActions,
	}
}

// Reply builds a success envelope for req.
func (b *Base) Reply(req *protocol.Request, value any) protocol.Reply {
	b.mu.RLock()
	r := b.replier
	b.mu.RUnlock()
	return r.Reply(req.Params, value)
}

func (b *Base) emit(ev ChangeEvent) {
	b.mu.RLock()
	o := b.observer
	ev.DeviceType = b.deviceType
	ev.DeviceNumber = b.number
	b.mu.RUnlock()
	if o != nil {
		o(ev)
	}
}

func (b *Base) getConnected(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Connected()), nil
}

func (b *Base) putConnected(req *protocol.Request) (protocol.Reply, error) {
	val, _ := req.Params.Get("Connected")
	if val != "True" && val != "False" {
		return protocol.Reply{}, protocol.ArgumentError("Invalid connection value")
	}
	connected := val == "True"

	b.mu.Lock()
	changed := b.connected != connected
	b.connected = connected
	b.mu.Unlock()

	if changed {
		b.emit(ChangeEvent{Kind: EventConnected, Channel: -1, Value: connected})
	}
	return b.Reply(req, nil), nil
}

func (b *Base) getName(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Info().Name), nil
}

func (b *Base) getDescription(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Info().Description), nil
}

func (b *Base) getDriverInfo(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Info().DriverInfo), nil
}

func (b *Base) getDriverVersion(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Info().DriverVersion), nil
}

func (b *Base) getInterfaceVersion(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, b.Info().InterfaceVersion), nil
}

func (b *Base) getSupportedActions(req *protocol.Request) (protocol.Reply, error) {
	return b.Reply(req, []string{}), nil
}
