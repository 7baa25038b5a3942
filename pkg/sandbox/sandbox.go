package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pactown/pactown/pkg/artifact"
	"github.com/pactown/pactown/pkg/cache"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/types"
)

// Sandbox is a materialized service directory ready to launch. Env is
// the cached dependency environment linked at .env inside the
// directory; its reference is held until the service process exits.
type Sandbox struct {
	Name     string
	Path     string
	Artifact *artifact.Artifact
	Env      *cache.Entry
}

// Create wipes and rebuilds the sandbox directory for a service,
// writes the artifact files byte-exact and links the cached
// dependency environment. Creating over a live service fails with
// ErrAlreadyRunning.
func (m *Manager) Create(name string, art *artifact.Artifact) (*Sandbox, error) {
	if m.liveHandle(name) != nil {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrAlreadyRunning, name)
	}

	path := filepath.Join(m.root, name)
	// A previous Create that never started still holds an env ref;
	// give it back before wiping the directory.
	if st, err := ReadState(path); err == nil && st.State == types.SandboxMaterialized && st.EnvHash != "" {
		m.cache.Release(st.EnvHash)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear sandbox %s: %w", name, err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox %s: %w", name, err)
	}

	for _, f := range art.Files {
		full := filepath.Join(path, f.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(full, f.Content, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	entry, err := m.cache.GetOrCreate(art.Deps)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Link(entry, path); err != nil {
		m.cache.Release(entry.Hash)
		return nil, err
	}

	if err := writeState(path, StateFile{State: types.SandboxMaterialized, EnvHash: entry.Hash}); err != nil {
		m.cache.Release(entry.Hash)
		return nil, err
	}

	m.logger.Debug().
		Str("service", name).
		Int("files", len(art.Files)).
		Str("env", entry.Hash).
		Msg("Sandbox materialized")

	return &Sandbox{Name: name, Path: path, Artifact: art, Env: entry}, nil
}

// liveHandle returns the handle for name when it is starting, running
// or stopping, nil otherwise.
func (m *Manager) liveHandle(name string) *Handle {
	m.mu.Lock()
	h, ok := m.handles[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	switch h.State() {
	case types.SandboxStarting, types.SandboxRunning, types.SandboxStopping:
		return h
	}
	return nil
}
