package registry

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/network"
	"github.com/pactown/pactown/pkg/types"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	alloc, err := network.NewPortAllocatorRange(30000, 30500)
	require.NoError(t, err)
	root := t.TempDir()
	return New(alloc, root), root
}

func TestRegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)

	endpoint, err := reg.Register("api", 30100, "/health")
	require.NoError(t, err)
	assert.Equal(t, "api", endpoint.Name)
	assert.Equal(t, DefaultHost, endpoint.Host)
	assert.Equal(t, 30100, endpoint.Port)
	assert.Equal(t, "http://127.0.0.1:30100", endpoint.URL())

	got, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, endpoint, got)

	_, ok = reg.Get("ghost")
	assert.False(t, ok)
}

func TestRegisterReusesLiveEntry(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first, err := reg.Register("api", 30110, "/health")
	require.NoError(t, err)

	// Port still free: same endpoint comes back.
	second, err := reg.Register("api", 0, "/healthz")
	require.NoError(t, err)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, "/healthz", second.HealthCheck)
}

func TestRegisterReallocatesWhenPortTaken(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first, err := reg.Register("api", 30120, "/health")
	require.NoError(t, err)

	// Occupy the old port so re-registration must move.
	ln, err := net.Listen("tcp", "127.0.0.1:30120")
	require.NoError(t, err)
	defer ln.Close()

	second, err := reg.Register("api", 0, "/health")
	require.NoError(t, err)
	assert.NotEqual(t, first.Port, second.Port)
}

func TestUnregisterFreesPort(t *testing.T) {
	reg, _ := newTestRegistry(t)

	endpoint, err := reg.Register("api", 30130, "/health")
	require.NoError(t, err)
	require.NoError(t, reg.Unregister("api"))

	_, ok := reg.Get("api")
	assert.False(t, ok)

	// The freed port can be issued again.
	again, err := reg.Register("other", endpoint.Port, "")
	require.NoError(t, err)
	assert.Equal(t, endpoint.Port, again.Port)

	// Unknown names are a no-op.
	assert.NoError(t, reg.Unregister("ghost"))
}

func TestEnvironmentFor(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register("postgres-db", 30140, "/health")
	require.NoError(t, err)
	_, err = reg.Register("api", 30141, "/health")
	require.NoError(t, err)

	env := reg.EnvironmentFor("api", []*config.DependencyConfig{
		{Name: "postgres-db"},
		{Name: "billing", Endpoint: "https://billing.example.com:8443/v1"},
		{Name: "opaque", Endpoint: "not a url"},
		{Name: "absent"},
	})

	assert.Equal(t, "http://127.0.0.1:30140", env["POSTGRES_DB_URL"])
	assert.Equal(t, "127.0.0.1", env["POSTGRES_DB_HOST"])
	assert.Equal(t, "30140", env["POSTGRES_DB_PORT"])

	assert.Equal(t, "https://billing.example.com:8443/v1", env["BILLING_URL"])
	assert.Equal(t, "billing.example.com", env["BILLING_HOST"])
	assert.Equal(t, "8443", env["BILLING_PORT"])

	// Unparseable override keeps the URL but omits host and port.
	assert.Equal(t, "not a url", env["OPAQUE_URL"])
	_, hasHost := env["OPAQUE_HOST"]
	assert.False(t, hasHost)

	// Undeclared and unregistered: nothing injected.
	_, hasAbsent := env["ABSENT_URL"]
	assert.False(t, hasAbsent)

	assert.Equal(t, "api", env["SERVICE_NAME"])
	assert.Equal(t, "30141", env["PORT"])
	assert.Equal(t, "30141", env["MARKPACT_PORT"])
	assert.Equal(t, "http://127.0.0.1:30141", env["SERVICE_URL"])
}

func TestPersistenceFormat(t *testing.T) {
	reg, root := newTestRegistry(t)

	_, err := reg.Register("db", 30150, "/health")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, StateFileName))
	require.NoError(t, err)

	var state map[string]map[string]struct {
		Name        string `json:"name"`
		Host        string `json:"host"`
		Port        int    `json:"port"`
		HealthCheck string `json:"health_check"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	entry := state["services"]["db"]
	assert.Equal(t, "db", entry.Name)
	assert.Equal(t, "127.0.0.1", entry.Host)
	assert.Equal(t, 30150, entry.Port)
	assert.Equal(t, "/health", entry.HealthCheck)
}

func TestLoadReconcilesLiveness(t *testing.T) {
	alloc, err := network.NewPortAllocatorRange(30000, 30500)
	require.NoError(t, err)
	root := t.TempDir()

	first := New(alloc, root)
	_, err = first.Register("alive", 30160, "/health")
	require.NoError(t, err)
	_, err = first.Register("dead", 30161, "/health")
	require.NoError(t, err)

	// A fresh process reloads; only "alive" survives the check.
	alloc2, err := network.NewPortAllocatorRange(30000, 30500)
	require.NoError(t, err)
	second := New(alloc2, root)
	require.NoError(t, second.Load(func(e types.ServiceEndpoint) bool {
		return e.Name == "alive"
	}))

	_, ok := second.Get("alive")
	assert.True(t, ok)
	_, ok = second.Get("dead")
	assert.False(t, ok)

	// The survivor's port is reserved, not reissued.
	assert.Equal(t, []int{30160}, alloc2.Issued())

	// The pruned set was written back.
	third := New(alloc2, root)
	require.NoError(t, third.Load(nil))
	list := third.List()
	require.Len(t, list, 1)
	assert.Equal(t, "alive", list[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.NoError(t, reg.Load(nil))
	assert.Empty(t, reg.List())
}
