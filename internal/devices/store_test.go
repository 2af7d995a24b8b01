package devices

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptors = `[
  {"name": "Power", "descr": "Main power", "min": 0, "max": 1, "step": 1, "canwrite": true,
   "io": {"register": "coil", "address": 3, "initval": 0}},
  {"name": "Temp", "descr": "", "min": -40, "max": 80, "step": 0.1, "canwrite": false}
]`

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	dir := t.TempDir()
	return NewFileStore(dir, v), dir
}

func TestFileStore_Load(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "switch0.json"), []byte(sampleDescriptors), 0o644))

	got, err := store.Load(context.Background(), "switch0.json")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Power", got[0].Name)
	require.NotNil(t, got[0].IO)
	assert.Equal(t, types.RegisterTypeCoil, got[0].IO.Register)
	assert.Equal(t, uint16(3), got[0].IO.Address)
	require.NotNil(t, got[0].IO.Initial)
	assert.Equal(t, 0.0, *got[0].IO.Initial)

	assert.Nil(t, got[1].IO)
	assert.Equal(t, -40.0, got[1].Min)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, err := store.Load(context.Background(), "nope.json")
	assert.ErrorIs(t, err, ErrDescriptorsNotFound)
}

func TestFileStore_LoadRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{`},
		{name: "not an array", doc: `{"name": "x"}`},
		{name: "missing canwrite", doc: `[{"name": "x", "descr": "", "min": 0, "max": 1, "step": 1}]`},
		{name: "empty name", doc: `[{"name": "", "descr": "", "min": 0, "max": 1, "step": 1, "canwrite": true}]`},
		{name: "negative step", doc: `[{"name": "x", "descr": "", "min": 0, "max": 1, "step": -1, "canwrite": true}]`},
		{name: "unknown register", doc: `[{"name": "x", "descr": "", "min": 0, "max": 1, "step": 1, "canwrite": true,
			"io": {"register": "analog", "address": 0}}]`},
		{name: "address out of range", doc: `[{"name": "x", "descr": "", "min": 0, "max": 1, "step": 1, "canwrite": true,
			"io": {"register": "coil", "address": 70000}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, dir := newTestFileStore(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(tt.doc), 0o644))

			_, err := store.Load(context.Background(), "bad.json")
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrDescriptorsNotFound)
		})
	}
}

func TestFileStore_SaveRoundTrip(t *testing.T) {
	store, dir := newTestFileStore(t)
	want := threeChannels()

	require.NoError(t, store.Save(context.Background(), "switch1.json", want))

	got, err := store.Load(context.Background(), "switch1.json")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_KeyCannotEscapeDir(t *testing.T) {
	store, dir := newTestFileStore(t)

	require.NoError(t, store.Save(context.Background(), "../../escape.json", threeChannels()))
	_, err := os.Stat(filepath.Join(dir, "escape.json"))
	assert.NoError(t, err)
}

func TestSwitch_RenameSurvivesRestart(t *testing.T) {
	store, _ := newTestFileStore(t)
	require.NoError(t, store.Save(context.Background(), "sw.json", threeChannels()))

	sw, err := NewSwitch(context.Background(), SwitchConfig{StoreKey: "sw.json", Store: store})
	require.NoError(t, err)
	require.NoError(t, sw.rename(context.Background(), 2, "Panel"))

	reloaded, err := NewSwitch(context.Background(), SwitchConfig{StoreKey: "sw.json", Store: store})
	require.NoError(t, err)
	assert.Equal(t, "Panel", reloaded.Descriptors()[2].Name)
	assert.Equal(t, "Power", reloaded.Descriptors()[0].Name)
}
