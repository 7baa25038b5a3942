package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceEndpointURLs(t *testing.T) {
	e := ServiceEndpoint{Name: "api", Host: "127.0.0.1", Port: 8004, HealthCheck: "/health"}
	assert.Equal(t, "http://127.0.0.1:8004", e.URL())
	assert.Equal(t, "http://127.0.0.1:8004/health", e.HealthURL())

	bare := ServiceEndpoint{Name: "raw", Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, bare.URL(), bare.HealthURL())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "POSTGRES_DB", EnvName("postgres-db"))
	assert.Equal(t, "MY_SVC_V2", EnvName("my.svc-v2"))
	assert.Equal(t, "API", EnvName("api"))
}

func TestUserProfilePortAllowed(t *testing.T) {
	open := &UserProfile{UserID: "u1"}
	assert.True(t, open.PortAllowed(8080))

	restricted := &UserProfile{UserID: "u2", AllowedPorts: []int{8000, 8001}}
	assert.True(t, restricted.PortAllowed(8000))
	assert.False(t, restricted.PortAllowed(9000))

	none := &UserProfile{UserID: "u3", AllowedPorts: []int{}}
	assert.False(t, none.PortAllowed(8000))
}
