package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/cache"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/events"
	"github.com/pactown/pactown/pkg/health"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/metrics"
	"github.com/pactown/pactown/pkg/types"
)

const (
	// LogFileName receives the mirrored stdout and stderr of a
	// service inside its sandbox.
	LogFileName = "service.log"

	// ErrorFileName is the post-mortem written after a non-zero exit.
	ErrorFileName = "error.log"

	// DefaultHost is where sandboxed services bind and are probed.
	DefaultHost = "127.0.0.1"

	// DefaultGrace is how long Stop waits between SIGTERM and SIGKILL.
	DefaultGrace = 10 * time.Second

	// DefaultStartTimeout bounds the readiness wait when the caller
	// does not set one.
	DefaultStartTimeout = 30 * time.Second
)

// Unregisterer removes a service endpoint once its process is gone.
// *registry.Registry satisfies it.
type Unregisterer interface {
	Unregister(name string) error
}

// Manager owns the lifecycle of all sandboxes under one root: it
// materializes them, launches and supervises their processes, and
// tears them down.
type Manager struct {
	root     string
	cache    *cache.Cache
	registry Unregisterer
	broker   *events.Broker
	grace    time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// Handle tracks one launched service process.
type Handle struct {
	Name      string
	Path      string
	Port      int
	PID       int
	Command   string
	StartedAt time.Time

	cmd      *exec.Cmd
	envHash  string
	logFile  *os.File
	stdout   *ringBuffer
	stderr   *ringBuffer
	waitDone chan struct{}

	mu         sync.Mutex
	state      types.SandboxState
	stopping   bool
	everRan    bool
	exitStatus int
}

// State returns the current lifecycle state.
func (h *Handle) State() types.SandboxState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ExitStatus returns the recorded exit status: 0 success, positive
// exit code, negative signal number. Only meaningful once the state
// is dead.
func (h *Handle) ExitStatus() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitStatus
}

// NewManager creates a sandbox manager rooted at root. The broker
// receives lifecycle events; the registry is informed when a process
// exits so stale endpoints disappear.
func NewManager(root string, c *cache.Cache, reg Unregisterer, broker *events.Broker) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}
	return &Manager{
		root:     root,
		cache:    c,
		registry: reg,
		broker:   broker,
		grace:    DefaultGrace,
		logger:   log.WithComponent("sandbox"),
		handles:  make(map[string]*Handle),
	}, nil
}

// Root returns the directory all sandboxes live under.
func (m *Manager) Root() string {
	return m.root
}

// SetGrace overrides the SIGTERM-to-SIGKILL grace period.
func (m *Manager) SetGrace(d time.Duration) {
	if d > 0 {
		m.grace = d
	}
}

// StartOptions control launch readiness checking.
type StartOptions struct {
	// HealthCheck is the HTTP path probed for readiness. Empty means
	// the service exposes no health endpoint; readiness then falls
	// back to a TCP accept probe on the port.
	HealthCheck string

	// Timeout bounds how long to wait for the first healthy response.
	Timeout time.Duration

	// SkipHealth starts the process without any readiness gate.
	SkipHealth bool
}

// Start launches the sandboxed service on the given port with the
// composed environment and gates on its readiness probe. The returned
// StartResult tags the outcome; Outcome values other than healthy and
// skipped come with a non-nil error.
func (m *Manager) Start(ctx context.Context, sb *Sandbox, port int, env map[string]string, opts StartOptions) (*types.StartResult, error) {
	m.mu.Lock()
	if existing, ok := m.handles[sb.Name]; ok {
		switch existing.State() {
		case types.SandboxStarting, types.SandboxRunning, types.SandboxStopping:
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", errdefs.ErrAlreadyRunning, sb.Name)
		}
	}
	h := &Handle{
		Name:     sb.Name,
		Path:     sb.Path,
		Port:     port,
		envHash:  sb.Env.Hash,
		stdout:   newRingBuffer(DefaultRingSize),
		stderr:   newRingBuffer(DefaultRingSize),
		waitDone: make(chan struct{}),
		state:    types.SandboxStarting,
	}
	m.handles[sb.Name] = h
	m.mu.Unlock()

	result, err := m.launch(ctx, h, sb, port, env, opts)
	if result == nil {
		// The process never started; free the slot and the env ref.
		m.mu.Lock()
		if cur, ok := m.handles[sb.Name]; ok && cur == h {
			delete(m.handles, sb.Name)
		}
		m.mu.Unlock()
		m.cache.Release(sb.Env.Hash)
		_ = writeState(sb.Path, StateFile{State: types.SandboxDead})
	}
	return result, err
}

func (m *Manager) launch(ctx context.Context, h *Handle, sb *Sandbox, port int, env map[string]string, opts StartOptions) (*types.StartResult, error) {
	prepared := PrepareCommand(sb.Artifact.Run, port)
	h.Command = prepared

	logFile, err := os.OpenFile(filepath.Join(sb.Path, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", LogFileName, err)
	}
	h.logFile = logFile

	cmd := exec.Command("sh", "-c", prepared)
	cmd.Dir = sb.Path
	cmd.Env = composeEnv(env, port)
	cmd.Stdout = io.MultiWriter(h.stdout, logFile)
	cmd.Stderr = io.MultiWriter(h.stderr, logFile)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.WaitDelay = 3 * time.Second

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", sb.Name, err)
	}
	h.cmd = cmd
	h.PID = cmd.Process.Pid
	h.StartedAt = time.Now()

	if err := writeState(sb.Path, StateFile{PID: h.PID, Port: port, StartedAt: h.StartedAt, State: types.SandboxStarting, EnvHash: h.envHash}); err != nil {
		m.logger.Warn().Err(err).Str("service", sb.Name).Msg("Failed to write state file")
	}

	m.logger.Info().
		Str("service", sb.Name).
		Int("pid", h.PID).
		Int("port", port).
		Str("command", prepared).
		Msg("Service process started")
	m.broker.Publish(&events.Event{
		Type:    events.EventServiceStarting,
		Service: sb.Name,
		Message: fmt.Sprintf("Process %d launched on port %d", h.PID, port),
	})

	go m.supervise(h)

	endpoint := types.ServiceEndpoint{Name: sb.Name, Host: DefaultHost, Port: port, HealthCheck: opts.HealthCheck}

	if opts.SkipHealth {
		m.markRunning(h)
		metrics.ServiceStarts.WithLabelValues(string(types.StartSkipped)).Inc()
		return &types.StartResult{Service: sb.Name, Endpoint: endpoint, Outcome: types.StartSkipped, PID: h.PID}, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	probeErr := make(chan error, 1)
	go func() {
		probeErr <- health.WaitReady(probeCtx, readinessChecker(port, opts.HealthCheck), timeout)
	}()

	select {
	case err := <-probeErr:
		if err != nil {
			metrics.ServiceStarts.WithLabelValues(string(types.StartTimeout)).Inc()
			return &types.StartResult{Service: sb.Name, Endpoint: endpoint, Outcome: types.StartTimeout, PID: h.PID},
				fmt.Errorf("service %s: %w", sb.Name, err)
		}
	case <-h.waitDone:
		status := h.ExitStatus()
		metrics.ServiceStarts.WithLabelValues(string(types.StartExited)).Inc()
		return &types.StartResult{Service: sb.Name, Endpoint: endpoint, Outcome: types.StartExited, PID: h.PID, ExitStatus: status},
			fmt.Errorf("service %s: %w: %s", sb.Name, errdefs.ErrProcessExited, describeExit(status))
	}

	m.markRunning(h)
	metrics.ServiceStarts.WithLabelValues(string(types.StartHealthy)).Inc()
	m.broker.Publish(&events.Event{
		Type:    events.EventServiceHealthy,
		Service: sb.Name,
		Message: "Readiness probe passed",
	})
	return &types.StartResult{Service: sb.Name, Endpoint: endpoint, Outcome: types.StartHealthy, PID: h.PID}, nil
}

func (m *Manager) markRunning(h *Handle) {
	h.mu.Lock()
	if h.state == types.SandboxDead {
		h.mu.Unlock()
		return
	}
	h.state = types.SandboxRunning
	h.everRan = true
	h.mu.Unlock()

	metrics.ServicesRunning.Inc()
	if err := writeState(h.Path, StateFile{PID: h.PID, Port: h.Port, StartedAt: h.StartedAt, State: types.SandboxRunning, EnvHash: h.envHash}); err != nil {
		m.logger.Warn().Err(err).Str("service", h.Name).Msg("Failed to write state file")
	}
}

// Stop terminates a service with SIGTERM to its process group,
// escalating to SIGKILL after the grace period. Stopping a name that
// is not running is a no-op.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	h, ok := m.handles[name]
	m.mu.Unlock()
	if !ok {
		return m.stopOrphan(name)
	}

	h.mu.Lock()
	if h.state == types.SandboxDead {
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	h.state = types.SandboxStopping
	h.mu.Unlock()

	m.logger.Info().Str("service", name).Int("pid", h.PID).Msg("Stopping service")
	if err := writeState(h.Path, StateFile{PID: h.PID, Port: h.Port, StartedAt: h.StartedAt, State: types.SandboxStopping, EnvHash: h.envHash}); err != nil {
		m.logger.Warn().Err(err).Str("service", name).Msg("Failed to write state file")
	}

	// Setsid made the child a group leader, so -pid reaches the
	// whole tree.
	if err := syscall.Kill(-h.PID, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn().Err(err).Int("pid", h.PID).Msg("SIGTERM failed")
	}

	select {
	case <-h.waitDone:
	case <-time.After(m.grace):
		m.logger.Warn().Str("service", name).Dur("grace", m.grace).Msg("Grace period elapsed, escalating to SIGKILL")
		if err := syscall.Kill(-h.PID, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn().Err(err).Int("pid", h.PID).Msg("SIGKILL failed")
		}
		<-h.waitDone
	}
	return nil
}

// stopOrphan handles Stop for a service this process never launched,
// using the persisted state file from an earlier run.
func (m *Manager) stopOrphan(name string) error {
	dir := filepath.Join(m.root, name)
	st, err := ReadState(dir)
	if err != nil || st.PID == 0 || !pidAlive(st.PID) {
		return nil
	}

	m.logger.Info().Str("service", name).Int("pid", st.PID).Msg("Stopping orphaned service from state file")
	if err := syscall.Kill(-st.PID, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		// The group may be gone even though the pid lives on.
		_ = syscall.Kill(st.PID, syscall.SIGTERM)
	}

	deadline := time.Now().Add(m.grace)
	for time.Now().Before(deadline) {
		if !pidAlive(st.PID) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if pidAlive(st.PID) {
		_ = syscall.Kill(-st.PID, syscall.SIGKILL)
	}

	if err := writeState(dir, StateFile{PID: st.PID, Port: st.Port, StartedAt: st.StartedAt, State: types.SandboxDead}); err != nil {
		m.logger.Warn().Err(err).Str("service", name).Msg("Failed to write state file")
	}
	if m.registry != nil {
		_ = m.registry.Unregister(name)
	}
	return nil
}

// Status reports the current state of a service, falling back to the
// on-disk state file for sandboxes launched by an earlier process.
func (m *Manager) Status(name string) (types.ServiceStatus, bool) {
	m.mu.Lock()
	h, ok := m.handles[name]
	m.mu.Unlock()
	if ok {
		st := h.State()
		status := types.ServiceStatus{Name: name, State: st, Port: h.Port, PID: h.PID}
		if st != types.SandboxDead {
			status.Uptime = time.Since(h.StartedAt).Round(time.Second)
		}
		return status, true
	}

	st, err := ReadState(filepath.Join(m.root, name))
	if err != nil {
		return types.ServiceStatus{}, false
	}
	status := types.ServiceStatus{Name: name, State: st.State, Port: st.Port, PID: st.PID}
	switch {
	case st.State == types.SandboxRunning && pidAlive(st.PID):
		status.Uptime = time.Since(st.StartedAt).Round(time.Second)
	case st.State == types.SandboxRunning || st.State == types.SandboxStarting:
		// The process is gone but nobody updated the file.
		status.State = types.SandboxDead
		status.PID = 0
	}
	return status, true
}

// Alive reports whether the named service has a live process. The
// registry uses it to drop stale endpoints when reloading state.
func (m *Manager) Alive(name string) bool {
	if h := m.liveHandle(name); h != nil {
		return true
	}
	st, err := ReadState(filepath.Join(m.root, name))
	if err != nil {
		return false
	}
	return (st.State == types.SandboxRunning || st.State == types.SandboxStarting) && pidAlive(st.PID)
}

// Logs returns captured service output. tail > 0 limits the result to
// the last tail lines.
func (m *Manager) Logs(name string, tail int) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.root, name, LogFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no logs for service %s", name)
		}
		return nil, err
	}
	if tail <= 0 {
		return data, nil
	}
	return tailLines(data, tail), nil
}

// List returns the names of all known sandboxes: live handles merged
// with materialized directories on disk, sorted.
func (m *Manager) List() []string {
	names := make(map[string]bool)
	m.mu.Lock()
	for name := range m.handles {
		names[name] = true
	}
	m.mu.Unlock()

	if entries, err := os.ReadDir(m.root); err == nil {
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if _, err := os.Stat(filepath.Join(m.root, e.Name(), StateFileName)); err == nil {
				names[e.Name()] = true
			}
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// composeEnv merges the caller's environment over the inherited one.
// PORT and MARKPACT_PORT always reflect the allocated port.
func composeEnv(env map[string]string, port int) []string {
	merged := os.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		if k == "PORT" || k == "MARKPACT_PORT" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	p := strconv.Itoa(port)
	return append(merged, "PORT="+p, "MARKPACT_PORT="+p)
}

// readinessChecker picks the probe for a service. Services without a
// health endpoint get a bare TCP accept probe.
func readinessChecker(port int, healthCheck string) health.Checker {
	if healthCheck == "" {
		return health.NewTCPChecker(fmt.Sprintf("%s:%d", DefaultHost, port))
	}
	return health.NewHTTPChecker(fmt.Sprintf("http://%s:%d%s", DefaultHost, port, healthCheck))
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func tailLines(data []byte, n int) []byte {
	trimmed := bytes.TrimRight(data, "\n")
	if len(trimmed) == 0 || n <= 0 {
		return nil
	}
	start := len(trimmed)
	for i := 0; i < n; i++ {
		next := bytes.LastIndexByte(trimmed[:start], '\n')
		if next < 0 {
			start = 0
			break
		}
		start = next
	}
	if start > 0 {
		start++
	}
	out := make([]byte, 0, len(trimmed)-start+1)
	out = append(out, trimmed[start:]...)
	return append(out, '\n')
}
