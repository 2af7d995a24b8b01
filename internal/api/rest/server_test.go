package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenAlpacaCore/internal/alpaca"
	"github.com/KevinKickass/OpenAlpacaCore/internal/config"
	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/interfaces"
	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type memStore map[string][]types.SwitchDescriptor

func (m memStore) Load(_ context.Context, key string) ([]types.SwitchDescriptor, error) {
	d, ok := m[key]
	if !ok {
		return nil, devices.ErrDescriptorsNotFound
	}
	return types.CloneDescriptors(d), nil
}

func (m memStore) Save(_ context.Context, key string, d []types.SwitchDescriptor) error {
	m[key] = types.CloneDescriptors(d)
	return nil
}

type fakeLifecycle struct{}

func (fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", DeviceCount: 2}
}

func (fakeLifecycle) Shutdown(context.Context) error { return nil }

type testEnv struct {
	server    *Server
	alpaca    *alpaca.ServerContext
	setupFile string
}

func newTestEnv(t *testing.T, lm interfaces.LifecycleManager) *testEnv {
	t.Helper()

	replier := protocol.NewReplier()
	registry := devices.NewRegistry(replier, zap.NewNop())

	store := memStore{"sw.json": {
		{Name: "Power", Min: 0, Max: 10, Step: 1, CanWrite: true},
		{Name: "Heater", Min: 0, Max: 100, Step: 1, CanWrite: false},
		{Name: "Aux", Min: 0, Max: 1, Step: 1, CanWrite: true},
	}}
	sw, err := devices.NewSwitch(context.Background(), devices.SwitchConfig{
		Options:  devices.Options{Name: "Switch", UniqueID: "u-sw"},
		StoreKey: "sw.json",
		Store:    store,
	})
	require.NoError(t, err)
	require.NoError(t, registry.Install(types.DeviceTypeSwitch, 0, sw))
	require.NoError(t, registry.Install(types.DeviceTypeDome, 0,
		devices.NewBase(types.DeviceTypeDome, devices.Options{Name: "Dome", UniqueID: "u-dome"})))

	sc := alpaca.NewServerContext(types.ServerDescription{ServerName: "test", Manufacturer: "acme"}, replier, registry)
	sc.SetAlpacaPort(11111)
	sc.SetDiscoveryPort(32227)

	setupFile := filepath.Join(t.TempDir(), "setup.yaml")
	cfg := &config.Config{
		Server:    config.ServerConfig{HTTPPort: 11111},
		SetupFile: setupFile,
	}

	return &testEnv{
		server:    NewServer(cfg, sc, lm, zap.NewNop(), nil),
		alpaca:    sc,
		setupFile: setupFile,
	}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (e *testEnv) send(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestServer_SetThenGetSwitchValue(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decode(t, env.send(t, http.MethodPut, "/api/v1/switch/0/setswitchvalue", url.Values{
		"Id": {"0"}, "Value": {"5"}, "ClientID": {"1"}, "ClientTransactionID": {"7"},
	}))
	assert.Equal(t, 0.0, body["ErrorNumber"])
	assert.Equal(t, "", body["ErrorMessage"])
	assert.Equal(t, 7.0, body["ClientTransactionID"])
	assert.Equal(t, 2.0, body["ServerTransactionID"])

	body = decode(t, env.get(t, "/api/v1/switch/0/getswitchvalue?Id=0&ClientID=1&ClientTransactionID=8"))
	assert.Equal(t, 5.0, body["Value"])
	assert.Equal(t, 8.0, body["ClientTransactionID"])
	assert.Equal(t, 3.0, body["ServerTransactionID"])
}

func TestServer_QueryKeysAreCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decode(t, env.get(t, "/api/v1/Switch/0/MaxSwitch?clientid=1&clienttransactionid=3"))
	assert.Equal(t, 3.0, body["Value"])
	assert.Equal(t, 3.0, body["ClientTransactionID"])
}

func TestServer_EnvelopeErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decode(t, env.send(t, http.MethodPut, "/api/v1/switch/0/setswitchvalue", url.Values{
		"Id": {"0"}, "Value": {"15"}, "ClientID": {"1"}, "ClientTransactionID": {"9"},
	}))
	assert.Equal(t, float64(protocol.ErrNumInvalidValue), body["ErrorNumber"])
	assert.Equal(t, "Value of switch 0 out of range or missing", body["ErrorMessage"])
	assert.NotContains(t, body, "Value")

	body = decode(t, env.send(t, http.MethodPut, "/api/v1/switch/0/setswitchvalue", url.Values{
		"Id": {"1"}, "Value": {"5"}, "ClientID": {"1"}, "ClientTransactionID": {"10"},
	}))
	assert.Equal(t, float64(protocol.ErrNumNotImplemented), body["ErrorNumber"])
}

func TestServer_TransportErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		form   url.Values
		want   string
	}{
		{
			name:   "unknown device type",
			method: http.MethodGet,
			target: "/api/v1/toaster/0/name?ClientID=1&ClientTransactionID=1",
			want:   "Device type toaster not implemented",
		},
		{
			name:   "device not installed",
			method: http.MethodGet,
			target: "/api/v1/switch/4/name?ClientID=1&ClientTransactionID=1",
			want:   "Device switch 4 not installed",
		},
		{
			name:   "unknown method",
			method: http.MethodGet,
			target: "/api/v1/switch/0/fly?ClientID=1&ClientTransactionID=1",
			want:   "Device switch 0 not installed",
		},
		{
			name:   "non numeric device number",
			method: http.MethodGet,
			target: "/api/v1/switch/abc/name?ClientID=1&ClientTransactionID=1",
			want:   "Invalid device number abc",
		},
		{
			name:   "missing client id",
			method: http.MethodGet,
			target: "/api/v1/switch/0/name?ClientTransactionID=1",
			want:   "Invalid ClientID",
		},
		{
			name:   "negative client id",
			method: http.MethodGet,
			target: "/api/v1/switch/0/name?ClientID=-1&ClientTransactionID=1",
			want:   "Invalid ClientID",
		},
		{
			name:   "unparsable transaction id",
			method: http.MethodGet,
			target: "/api/v1/switch/0/name?ClientID=1&ClientTransactionID=abc",
			want:   "Invalid ClientTransactionID",
		},
		{
			name:   "write ids only in the query",
			method: http.MethodPut,
			target: "/api/v1/switch/0/setswitchvalue?ClientID=1&ClientTransactionID=1",
			form:   url.Values{"Id": {"0"}, "Value": {"1"}},
			want:   "Invalid ClientID",
		},
		{
			name:   "invalid switch id",
			method: http.MethodGet,
			target: "/api/v1/switch/0/getswitchvalue?Id=x&ClientID=1&ClientTransactionID=1",
			want:   "Switch ID invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.method == http.MethodGet {
				w = env.get(t, tt.target)
			} else {
				w = env.send(t, tt.method, tt.target, tt.form)
			}
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestServer_Management(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decode(t, env.get(t, "/management/apiversions?ClientTransactionID=5"))
	assert.Equal(t, []any{1.0}, body["Value"])
	assert.NotContains(t, body, "ClientTransactionID")

	body = decode(t, env.get(t, "/management/v1/description"))
	desc, ok := body["Value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test", desc["ServerName"])
	assert.Equal(t, "acme", desc["Manufacturer"])

	body = decode(t, env.get(t, "/management/v1/configureddevices"))
	list, ok := body["Value"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "dome", first["DeviceType"])
	assert.Equal(t, "Dome", first["DeviceName"])
	assert.Equal(t, "u-dome", first["UniqueID"])
}

func TestServer_Setup(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, "/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/setup", w.Header().Get("Location"))

	body := decode(t, env.get(t, "/setup"))
	assert.Equal(t, 11111.0, body["server_port"])
	assert.Equal(t, 32227.0, body["discovery_port"])

	body = decode(t, env.send(t, http.MethodPost, "/setup", url.Values{"srvport": {"8080"}, "discport": {"32228"}}))
	assert.Equal(t, 8080.0, body["server_port"])
	assert.Equal(t, 8080, env.alpaca.AlpacaPort())
	assert.Equal(t, 32228, env.alpaca.DiscoveryPort())

	data, err := os.ReadFile(env.setupFile)
	require.NoError(t, err)
	var overlay config.SetupOverlay
	require.NoError(t, yaml.Unmarshal(data, &overlay))
	assert.Equal(t, config.SetupOverlay{HTTPPort: 8080, DiscoveryPort: 32228}, overlay)
}

func TestServer_SetupRejectsInvalidPorts(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, form := range []url.Values{
		{"srvport": {"0"}, "discport": {"32227"}},
		{"srvport": {"8080"}, "discport": {"70000"}},
		{"srvport": {"abc"}, "discport": {"32227"}},
		{"srvport": {"8080"}},
	} {
		w := env.send(t, http.MethodPost, "/setup", form)
		assert.Equal(t, http.StatusBadRequest, w.Code, form.Encode())
	}

	assert.Equal(t, 11111, env.alpaca.AlpacaPort())
	_, err := os.Stat(env.setupFile)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_DeviceSetupPage(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, "/setup/v1/dome/0/setup")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Setup page", w.Body.String())

	w = env.get(t, "/setup/v1/switch/0/setup")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sw.json")

	w = env.get(t, "/setup/v1/dome/1/setup")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Device dome 1 not installed", w.Body.String())
}

func TestServer_HealthAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decode(t, env.get(t, "/health"))
	assert.Equal(t, "ok", body["status"])

	w := env.get(t, "/system/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env = newTestEnv(t, fakeLifecycle{})
	body = decode(t, env.get(t, "/system/status"))
	assert.Equal(t, "RUNNING", body["state"])
	assert.Equal(t, 2.0, body["device_count"])
}

func TestServer_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/switch/0/setswitchvalue", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
