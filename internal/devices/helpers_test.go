package devices

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory DescriptorStore that records saves.
type memStore struct {
	mu      sync.Mutex
	docs    map[string][]types.SwitchDescriptor
	saves   int
	saveErr error
}

func newMemStore(key string, descriptors []types.SwitchDescriptor) *memStore {
	return &memStore{docs: map[string][]types.SwitchDescriptor{key: descriptors}}
}

func (m *memStore) Load(_ context.Context, key string) ([]types.SwitchDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	if !ok {
		return nil, ErrDescriptorsNotFound
	}
	return types.CloneDescriptors(d), nil
}

func (m *memStore) Save(_ context.Context, key string, descriptors []types.SwitchDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.docs[key] = types.CloneDescriptors(descriptors)
	return nil
}

// fakeBinding serves reads from a map and records writes.
type fakeBinding struct {
	mu       sync.Mutex
	inputs   map[int]float64
	writes   map[int]float64
	writeErr error
	closed   bool
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{inputs: map[int]float64{}, writes: map[int]float64{}}
}

func (f *fakeBinding) Read(_ context.Context, channel int, _ types.ChannelIO) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.inputs[channel]; ok {
		return v, nil
	}
	return f.writes[channel], nil
}

func (f *fakeBinding) Write(_ context.Context, channel int, _ types.ChannelIO, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes[channel] = value
	delete(f.inputs, channel)
	return nil
}

func (f *fakeBinding) Close() error {
	f.closed = true
	return nil
}

var errBoom = errors.New("boom")

func threeChannels() []types.SwitchDescriptor {
	return []types.SwitchDescriptor{
		{Name: "Power", Description: "Main power", Min: 0, Max: 10, Step: 1, CanWrite: true},
		{Name: "Heater", Description: "Dew heater", Min: 0, Max: 100, Step: 5, CanWrite: false},
		{Name: "Flat", Description: "Flat panel", Min: -5, Max: 5, Step: 0.5, CanWrite: true},
	}
}

// newTestSwitch builds a switch installed at slot 0 of a fresh registry.
func newTestSwitch(t *testing.T, descriptors []types.SwitchDescriptor, binding Binding) (*Switch, *memStore, *protocol.Replier) {
	t.Helper()

	store := newMemStore("switch0.json", descriptors)
	cfg := SwitchConfig{
		Options:  Options{Name: "Test Switch", UniqueID: "2fba39e5-e84b-4d68-8aa5-fae287abc02d"},
		StoreKey: "switch0.json",
		Store:    store,
		Logger:   zap.NewNop(),
	}
	if binding != nil {
		cfg.Binding = binding
	}
	sw, err := NewSwitch(context.Background(), cfg)
	require.NoError(t, err)

	replier := protocol.NewReplier()
	registry := NewRegistry(replier, zap.NewNop())
	require.NoError(t, registry.Install(types.DeviceTypeSwitch, 0, sw))

	return sw, store, replier
}

func get(method string, query url.Values) *protocol.Request {
	if query == nil {
		query = url.Values{}
	}
	query.Set("ClientID", "1")
	query.Set("ClientTransactionID", "10")
	return protocol.NewRequest(context.Background(), http.MethodGet, "switch", 0, method, protocol.QueryParams(query))
}

func put(method string, form url.Values) *protocol.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set("ClientID", "1")
	form.Set("ClientTransactionID", "10")
	return protocol.NewRequest(context.Background(), http.MethodPut, "switch", 0, method, protocol.FormParams(form))
}

func call(t *testing.T, d Device, req *protocol.Request) (protocol.Reply, error) {
	t.Helper()
	h, ok := d.Capabilities()[Route{Verb: req.Verb, Method: req.Method}]
	require.True(t, ok, "no capability %s %s", req.Verb, req.Method)
	return h(req)
}

func requireKind(t *testing.T, err error, kind protocol.Kind) *protocol.Error {
	t.Helper()
	perr, ok := protocol.AsError(err)
	require.True(t, ok, "expected protocol error, got %v", err)
	require.Equal(t, kind, perr.Kind)
	return perr
}
