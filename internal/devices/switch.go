package devices

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"go.uber.org/zap"
)

const (
	switchInterfaceVersion = 2
	switchDriverInfo       = "Go Alpaca Switch Driver"
	switchDriverVersion    = "v0.90"
)

// SwitchConfig configures a Switch.
type SwitchConfig struct {
	Options
	// StoreKey names the descriptor document in Store.
	StoreKey string
	Store    DescriptorStore
	// Binding is optional; without it every channel is memory-only.
	Binding Binding
	Logger  *zap.Logger
}

// Switch is a multi-channel switch device with bounded, named, optionally writable channels.
//
// Descriptors and values are indexed 1:1 by channel id. Channels whose descriptor carries an
// io mapping are read from and written to the binding; the in-memory value always follows
// the last physical read or successful write.
type Switch struct {
	*Base

	store    DescriptorStore
	storeKey string
	binding  Binding
	logger   *zap.Logger

	mu          sync.Mutex
	descriptors []types.SwitchDescriptor
	values      []float64
}

// NewSwitch loads the descriptors from the store and initialises all channels to zero,
// or to their io initval, which is also written to the binding.
func NewSwitch(ctx context.Context, cfg SwitchConfig) (*Switch, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("switch %q: descriptor store is required", cfg.Name)
	}

	descriptors, err := cfg.Store.Load(ctx, cfg.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load switch descriptors: %w", err)
	}
	if err := checkDescriptors(descriptors); err != nil {
		return nil, fmt.Errorf("switch %q: %w", cfg.Name, err)
	}

	opts := cfg.Options
	if opts.DriverInfo == "" {
		opts.DriverInfo = switchDriverInfo
	}
	if opts.DriverVersion == "" {
		opts.DriverVersion = switchDriverVersion
	}
	opts.InterfaceVersion = switchInterfaceVersion

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Switch{
		Base:        NewBase(types.DeviceTypeSwitch, opts),
		store:       cfg.Store,
		storeKey:    cfg.StoreKey,
		binding:     cfg.Binding,
		logger:      logger,
		descriptors: descriptors,
		values:      make([]float64, len(descriptors)),
	}

	for i, d := range descriptors {
		if d.IO == nil || d.IO.Initial == nil {
			continue
		}
		s.values[i] = *d.IO.Initial
		if s.binding != nil && !d.IO.Register.ReadOnly() {
			if err := s.binding.Write(ctx, i, *d.IO, *d.IO.Initial); err != nil {
				return nil, fmt.Errorf("failed to write initial value of channel %d: %w", i, err)
			}
		}
	}

	return s, nil
}

func checkDescriptors(descriptors []types.SwitchDescriptor) error {
	for i, d := range descriptors {
		if d.Min > d.Max {
			return fmt.Errorf("channel %d: min %v greater than max %v", i, d.Min, d.Max)
		}
		if d.CanWrite && d.IO != nil && d.IO.Register.ReadOnly() {
			return fmt.Errorf("channel %d: writable channel mapped to read-only %s", i, d.IO.Register)
		}
	}
	return nil
}

func (s *Switch) Capabilities() Capabilities {
	caps := s.Base.Capabilities()
	caps[Get("maxswitch")] = s.getMaxSwitch
	caps[Get("getswitchvalue")] = s.getSwitchValue
	caps[Get("getswitch")] = s.getSwitch
	caps[Put("setswitchvalue")] = s.putSwitchValue
	caps[Put("setswitch")] = s.putSwitch
	caps[Get("getswitchname")] = s.getSwitchName
	caps[Put("setswitchname")] = s.putSwitchName
	caps[Get("canwrite")] = s.getCanWrite
	caps[Get("getswitchdescription")] = s.getSwitchDescription
	caps[Get("minswitchvalue")] = s.getMinSwitchValue
	caps[Get("maxswitchvalue")] = s.getMaxSwitchValue
	caps[Get("switchstep")] = s.getSwitchStep
	return caps
}

func (s *Switch) SetupPage() string {
	return fmt.Sprintf("Setup page of switch %q (descriptors: %s)", s.Info().Name, s.storeKey)
}

// MaxSwitch returns the number of channels.
func (s *Switch) MaxSwitch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.descriptors)
}

// Descriptors returns a copy of the channel descriptors.
func (s *Switch) Descriptors() []types.SwitchDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneDescriptors(s.descriptors)
}

// Close releases the binding.
func (s *Switch) Close() error {
	if s.binding == nil {
		return nil
	}
	return s.binding.Close()
}

// resolveChannelID parses Id (or ID) and checks it against the channel count.
func (s *Switch) resolveChannelID(req *protocol.Request) (int, error) {
	raw, ok := req.Params.Get("Id")
	if !ok {
		raw, ok = req.Params.Get("ID")
	}
	if !ok {
		return 0, protocol.ArgumentError("Switch ID invalid")
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, protocol.ArgumentError("Switch ID invalid")
	}
	if id < 0 || id >= s.MaxSwitch() {
		return 0, protocol.RangeError("Switch ID out of range or missing")
	}
	return id, nil
}

func (s *Switch) descriptor(id int) types.SwitchDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptors[id]
}

// Value reads a channel, going to the binding for mapped channels.
func (s *Switch) Value(ctx context.Context, id int) (float64, error) {
	d := s.descriptor(id)
	if d.IO == nil || s.binding == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.values[id], nil
	}

	v, err := s.binding.Read(ctx, id, *d.IO)
	if err != nil {
		return 0, fmt.Errorf("failed to read channel %d: %w", id, err)
	}
	s.setCached(id, v)
	return v, nil
}

// SetValue writes a channel. Mapped channels are written to the binding first.
func (s *Switch) SetValue(ctx context.Context, id int, value float64) error {
	d := s.descriptor(id)
	if d.IO != nil && s.binding != nil {
		if err := s.binding.Write(ctx, id, *d.IO, value); err != nil {
			return fmt.Errorf("failed to write channel %d: %w", id, err)
		}
	}
	s.setCached(id, value)
	return nil
}

// Refresh reads every mapped channel and reports changed values.
func (s *Switch) Refresh(ctx context.Context) error {
	if s.binding == nil {
		return nil
	}
	for id, d := range s.Descriptors() {
		if d.IO == nil {
			continue
		}
		if _, err := s.Value(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// HasMappedChannels reports whether any channel is bound to physical I/O.
func (s *Switch) HasMappedChannels() bool {
	if s.binding == nil {
		return false
	}
	for _, d := range s.Descriptors() {
		if d.IO != nil {
			return true
		}
	}
	return false
}

func (s *Switch) setCached(id int, value float64) {
	s.mu.Lock()
	changed := s.values[id] != value
	s.values[id] = value
	name := s.descriptors[id].Name
	s.mu.Unlock()

	if changed {
		s.emit(ChangeEvent{Kind: EventSwitchValue, Channel: id, Name: name, Value: value})
	}
}

func (s *Switch) getMaxSwitch(req *protocol.Request) (protocol.Reply, error) {
	return s.Reply(req, s.MaxSwitch()), nil
}

func (s *Switch) getSwitchValue(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	v, err := s.Value(req.Context, id)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, v), nil
}

func (s *Switch) getSwitch(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	v, err := s.Value(req.Context, id)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, v != 0), nil
}

func (s *Switch) putSwitchValue(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	d := s.descriptor(id)
	if !d.CanWrite {
		return protocol.Reply{}, protocol.NotImplementedError("Device cannot be written to")
	}

	raw, ok := req.Params.Get("Value")
	if !ok {
		return protocol.Reply{}, protocol.ArgumentError("Invalid or missing switch value")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return protocol.Reply{}, protocol.ArgumentError("Invalid or missing switch value")
	}
	if v < d.Min || v > d.Max {
		return protocol.Reply{}, protocol.RangeError("Value of switch %d out of range or missing", id)
	}

	if err := s.SetValue(req.Context, id, v); err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, ""), nil
}

func (s *Switch) putSwitch(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	if !s.descriptor(id).CanWrite {
		return protocol.Reply{}, protocol.NotImplementedError("Device cannot be written to")
	}

	var v float64
	switch state, _ := req.Params.Get("State"); state {
	case "True":
		v = 1
	case "False":
		v = 0
	default:
		return protocol.Reply{}, protocol.ArgumentError("Invalid or missing switch state")
	}

	if err := s.SetValue(req.Context, id, v); err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, ""), nil
}

func (s *Switch) getSwitchName(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).Name), nil
}

func (s *Switch) putSwitchName(req *protocol.Request) (protocol.Reply, error) {
	name, ok := req.Params.Get("Name")
	if !ok || name == "" {
		return protocol.Reply{}, protocol.ArgumentError("Invalid or missing switch name")
	}
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}

	if err := s.rename(req.Context, id, name); err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, nil), nil
}

// rename persists the full descriptor list before the new name becomes visible.
func (s *Switch) rename(ctx context.Context, id int, name string) error {
	s.mu.Lock()
	updated := types.CloneDescriptors(s.descriptors)
	updated[id].Name = name
	if err := s.store.Save(ctx, s.storeKey, updated); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist switch descriptors: %w", err)
	}
	s.descriptors = updated
	s.mu.Unlock()

	s.logger.Info("Switch channel renamed",
		zap.String("device", s.Info().Name),
		zap.Int("channel", id),
		zap.String("name", name))
	s.emit(ChangeEvent{Kind: EventSwitchName, Channel: id, Name: name, Value: name})
	return nil
}

func (s *Switch) getCanWrite(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).CanWrite), nil
}

func (s *Switch) getSwitchDescription(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).Description), nil
}

func (s *Switch) getMinSwitchValue(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).Min), nil
}

func (s *Switch) getMaxSwitchValue(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).Max), nil
}

func (s *Switch) getSwitchStep(req *protocol.Request) (protocol.Reply, error) {
	id, err := s.resolveChannelID(req)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Reply(req, s.descriptor(id).Step), nil
}
