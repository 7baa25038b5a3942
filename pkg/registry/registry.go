package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/network"
	"github.com/pactown/pactown/pkg/types"
)

// StateFileName is the registry persistence file under the sandbox
// root.
const StateFileName = ".pactown-services.json"

// DefaultHost is the address services are reachable on.
const DefaultHost = "127.0.0.1"

// Registry tracks the endpoints of running services and composes the
// discovery environment injected into dependents. Every mutation is
// persisted so a fresh process can answer status and down commands.
type Registry struct {
	mu        sync.RWMutex
	services  map[string]types.ServiceEndpoint
	allocator *network.PortAllocator
	path      string
	logger    zerolog.Logger
}

// stateFile is the on-disk format.
type stateFile struct {
	Services map[string]types.ServiceEndpoint `json:"services"`
}

// New builds a registry persisting under sandboxRoot.
func New(alloc *network.PortAllocator, sandboxRoot string) *Registry {
	return &Registry{
		services:  make(map[string]types.ServiceEndpoint),
		allocator: alloc,
		path:      filepath.Join(sandboxRoot, StateFileName),
		logger:    log.WithComponent("registry"),
	}
}

// Path returns the persistence file path.
func (r *Registry) Path() string {
	return r.path
}

// Register allocates a port and records the endpoint for name. When
// name is already registered and its port is still free the existing
// endpoint is reused; a port taken in the meantime forces reallocation.
func (r *Registry) Register(name string, preferredPort int, healthCheck string) (types.ServiceEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.services[name]; ok {
		if network.PortFree(existing.Port) {
			existing.HealthCheck = healthCheck
			r.services[name] = existing
			if err := r.save(); err != nil {
				return types.ServiceEndpoint{}, err
			}
			return existing, nil
		}
		r.allocator.Release(existing.Port)
	}

	port, err := r.allocator.Allocate(preferredPort)
	if err != nil {
		return types.ServiceEndpoint{}, fmt.Errorf("register %s: %w", name, err)
	}

	endpoint := types.ServiceEndpoint{
		Name:        name,
		Host:        DefaultHost,
		Port:        port,
		HealthCheck: healthCheck,
	}
	r.services[name] = endpoint
	if err := r.save(); err != nil {
		delete(r.services, name)
		r.allocator.Release(port)
		return types.ServiceEndpoint{}, err
	}

	r.logger.Info().
		Str("service", name).
		Int("port", port).
		Msg("Service registered")
	return endpoint, nil
}

// Unregister removes name and frees its port. Unknown names are a
// no-op.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint, ok := r.services[name]
	if !ok {
		return nil
	}
	delete(r.services, name)
	r.allocator.Release(endpoint.Port)
	if err := r.save(); err != nil {
		return err
	}

	r.logger.Info().
		Str("service", name).
		Int("port", endpoint.Port).
		Msg("Service unregistered")
	return nil
}

// Get returns the endpoint registered for name.
func (r *Registry) Get(name string) (types.ServiceEndpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.services[name]
	return endpoint, ok
}

// List returns all endpoints sorted by service name.
func (r *Registry) List() []types.ServiceEndpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints := make([]types.ServiceEndpoint, 0, len(r.services))
	for _, e := range r.services {
		endpoints = append(endpoints, e)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Name < endpoints[j].Name })
	return endpoints
}

// EnvironmentFor composes the discovery environment for a service:
// {DEP}_URL, {DEP}_HOST and {DEP}_PORT per dependency, plus the
// service's own PORT, MARKPACT_PORT, SERVICE_NAME and SERVICE_URL.
// An explicit dependency endpoint replaces the registered URL; host
// and port are derived from it when it parses, omitted otherwise.
func (r *Registry) EnvironmentFor(name string, deps []*config.DependencyConfig) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	env := map[string]string{
		"SERVICE_NAME": name,
	}
	if self, ok := r.services[name]; ok {
		port := strconv.Itoa(self.Port)
		env["PORT"] = port
		env["MARKPACT_PORT"] = port
		env["SERVICE_URL"] = self.URL()
	}

	for _, dep := range deps {
		prefix := types.EnvName(dep.Name)
		if dep.Endpoint != "" {
			env[prefix+"_URL"] = dep.Endpoint
			if u, err := url.Parse(dep.Endpoint); err == nil && u.Hostname() != "" {
				env[prefix+"_HOST"] = u.Hostname()
				if p := u.Port(); p != "" {
					env[prefix+"_PORT"] = p
				}
			}
			continue
		}
		target, ok := r.services[dep.Name]
		if !ok {
			continue
		}
		env[prefix+"_URL"] = target.URL()
		env[prefix+"_HOST"] = target.Host
		env[prefix+"_PORT"] = strconv.Itoa(target.Port)
	}
	return env
}

// Load restores persisted endpoints, keeping only those the alive
// predicate confirms. Dead entries are dropped without error; kept
// ports are reserved in the allocator so they cannot be reissued.
func (r *Registry) Load(alive func(types.ServiceEndpoint) bool) error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read registry state: %v", errdefs.ErrInternal, err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: corrupt registry state %s: %v", errdefs.ErrInternal, r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for name, endpoint := range state.Services {
		if alive != nil && !alive(endpoint) {
			dropped++
			r.logger.Debug().
				Str("service", name).
				Int("port", endpoint.Port).
				Msg("Dropping dead registry entry")
			continue
		}
		r.services[name] = endpoint
		r.allocator.Reserve(endpoint.Port)
	}
	if dropped > 0 {
		return r.save()
	}
	return nil
}

// save writes the registry atomically. Callers hold r.mu.
func (r *Registry) save() error {
	state := stateFile{Services: r.services}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal registry state: %v", errdefs.ErrInternal, err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", errdefs.ErrInternal, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".pactown-services-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: write registry state: %v", errdefs.ErrInternal, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write registry state: %v", errdefs.ErrInternal, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write registry state: %v", errdefs.ErrInternal, err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write registry state: %v", errdefs.ErrInternal, err)
	}
	return nil
}
