package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactown/pactown/pkg/errdefs"
)

const sampleConfig = `
name: demo
version: 1.0.0
description: two service demo
base_port: 9000
services:
  db:
    readme: db/README.md
    health_check: /health
  api:
    port: 9100
    timeout: 30
    env:
      LOG_LEVEL: debug
    depends_on:
      - db
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, 9000, cfg.BasePort)
	assert.Equal(t, filepath.Clean(DefaultSandboxRoot), cfg.SandboxRoot)
	assert.Equal(t, DefaultRegistryURL, cfg.Registry.URL)
	assert.Equal(t, "default", cfg.Registry.Namespace)

	require.Len(t, cfg.Services, 2)

	db := cfg.Services[0]
	assert.Equal(t, "db", db.Name)
	assert.Equal(t, 9000, db.Port) // base_port + 0
	assert.Equal(t, "/health", db.HealthCheck)
	assert.Equal(t, DefaultTimeoutSeconds, db.Timeout)
	assert.True(t, db.AutoRestart)

	api := cfg.Services[1]
	assert.Equal(t, 9100, api.Port)
	assert.Equal(t, 30, api.Timeout)
	assert.Equal(t, filepath.Join("api", "README.md"), api.Readme)
	require.Len(t, api.DependsOn, 1)
	assert.Equal(t, "db", api.DependsOn[0].Name)
	assert.Equal(t, "*", api.DependsOn[0].Version)
}

func TestParseDeclarationOrderPorts(t *testing.T) {
	cfg, err := Parse([]byte(`
name: ordered
services:
  charlie: {}
  alpha: {}
  bravo:
    port: 7500
`))
	require.NoError(t, err)
	require.Len(t, cfg.Services, 3)

	// Default ports follow declaration order, not name order.
	assert.Equal(t, "charlie", cfg.Services[0].Name)
	assert.Equal(t, 8000, cfg.Services[0].Port)
	assert.Equal(t, "alpha", cfg.Services[1].Name)
	assert.Equal(t, 8001, cfg.Services[1].Port)
	assert.Equal(t, "bravo", cfg.Services[2].Name)
	assert.Equal(t, 7500, cfg.Services[2].Port)
}

func TestParseDependencyForms(t *testing.T) {
	cfg, err := Parse([]byte(`
name: deps
services:
  api:
    depends_on:
      - db@1.2.0
      - cache
      - name: auth
        endpoint: https://auth.example.com
        env_var: AUTH_SERVICE_URL
  db: {}
  cache: {}
`))
	require.NoError(t, err)

	api := cfg.Service("api")
	require.NotNil(t, api)
	require.Len(t, api.DependsOn, 3)

	assert.Equal(t, "db", api.DependsOn[0].Name)
	assert.Equal(t, "1.2.0", api.DependsOn[0].Version)
	assert.Equal(t, "cache", api.DependsOn[1].Name)
	assert.Equal(t, "*", api.DependsOn[1].Version)

	auth := api.DependsOn[2]
	assert.Equal(t, "auth", auth.Name)
	assert.Equal(t, "https://auth.example.com", auth.Endpoint)
	assert.Equal(t, "AUTH_SERVICE_URL", auth.EnvVar)

	assert.Equal(t, []string{"cache", "db"}, cfg.InternalDeps(api))
}

func TestParseHealthCheckDisabled(t *testing.T) {
	cfg, err := Parse([]byte(`
name: demo
services:
  worker:
    health_check: ""
`))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Services[0].HealthCheck)
}

func TestParseAutoRestartDisabled(t *testing.T) {
	cfg, err := Parse([]byte(`
name: demo
services:
  job:
    auto_restart: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Services[0].AutoRestart)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown top-level key",
			yaml: "name: x\nreplicas: 3\n",
		},
		{
			name: "unknown service key",
			yaml: "name: x\nservices:\n  api:\n    image: nginx\n",
		},
		{
			name: "unknown dependency key",
			yaml: "name: x\nservices:\n  api:\n    depends_on:\n      - name: db\n        weight: 4\n",
		},
		{
			name: "missing ecosystem name",
			yaml: "version: 1.0.0\nservices: {}\n",
		},
		{
			name: "negative port",
			yaml: "name: x\nservices:\n  api:\n    port: -1\n",
		},
		{
			name: "dependency missing name",
			yaml: "name: x\nservices:\n  api:\n    depends_on:\n      - endpoint: http://x\n",
		},
		{
			name: "not yaml",
			yaml: "{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfig(err), "expected config error, got %v", err)
		})
	}
}

func TestLoadAppliesSandboxRootOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pactown.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	t.Setenv(EnvSandboxRoot, "/tmp/custom-sandboxes")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-sandboxes", cfg.SandboxRoot)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.True(t, errdefs.IsConfig(err))
}

func TestRegistryOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
name: demo
registry:
  url: https://registry.internal/
  namespace: team-a
services: {}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://registry.internal", cfg.Registry.URL)
	assert.Equal(t, "team-a", cfg.Registry.Namespace)
}
