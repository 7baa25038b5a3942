package sandbox

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pactown/pactown/pkg/events"
	"github.com/pactown/pactown/pkg/metrics"
	"github.com/pactown/pactown/pkg/types"
)

// errTailBytes bounds how much of each output stream lands in the
// post-mortem.
const errTailBytes = 4096

// supervise waits for the service process to exit and settles its
// bookkeeping: state file, post-mortem, endpoint, cache reference and
// the exit event. Runs as one goroutine per live sandbox.
func (m *Manager) supervise(h *Handle) {
	waitErr := h.cmd.Wait()
	status := exitStatus(h.cmd, waitErr)

	h.mu.Lock()
	h.exitStatus = status
	h.state = types.SandboxDead
	wasStopping := h.stopping
	counted := h.everRan
	h.mu.Unlock()
	close(h.waitDone)

	h.logFile.Close()

	if counted {
		metrics.ServicesRunning.Dec()
	}
	if err := writeState(h.Path, StateFile{PID: h.PID, Port: h.Port, StartedAt: h.StartedAt, State: types.SandboxDead, EnvHash: h.envHash}); err != nil {
		m.logger.Warn().Err(err).Str("service", h.Name).Msg("Failed to write state file")
	}

	if status != 0 && !wasStopping {
		if err := writeErrorLog(h, status); err != nil {
			m.logger.Warn().Err(err).Str("service", h.Name).Msg("Failed to write error log")
		}
	}

	if m.registry != nil {
		if err := m.registry.Unregister(h.Name); err != nil {
			m.logger.Debug().Err(err).Str("service", h.Name).Msg("Endpoint already unregistered")
		}
	}
	m.cache.Release(h.envHash)

	eventType := events.EventServiceExited
	verb := "exited"
	if wasStopping {
		eventType = events.EventServiceStopped
		verb = "stopped"
	}
	m.broker.Publish(&events.Event{
		Type:     eventType,
		Service:  h.Name,
		Message:  fmt.Sprintf("Process %d %s: %s", h.PID, verb, describeExit(status)),
		Metadata: map[string]string{"exit_status": strconv.Itoa(status)},
	})

	logEvent := m.logger.Info()
	if status != 0 && !wasStopping {
		logEvent = m.logger.Error()
	}
	logEvent.
		Str("service", h.Name).
		Int("pid", h.PID).
		Int("exit_status", status).
		Bool("stopped", wasStopping).
		Msg("Service process exited")

	m.mu.Lock()
	if cur, ok := m.handles[h.Name]; ok && cur == h {
		delete(m.handles, h.Name)
	}
	m.mu.Unlock()
}

// exitStatus flattens a process exit into the single int the rest of
// the system consumes: 0 success, positive exit code, negative signal
// number.
func exitStatus(cmd *exec.Cmd, waitErr error) int {
	if ps := cmd.ProcessState; ps != nil {
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return -int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ps.ExitCode()
	}
	if waitErr != nil {
		return 1
	}
	return 0
}

var signalNames = map[int]string{
	-15: "SIGTERM",
	-9:  "SIGKILL",
	-2:  "SIGINT",
	-11: "SIGSEGV",
	-6:  "SIGABRT",
}

// describeExit renders an exit status for logs and events.
func describeExit(status int) string {
	if status >= 0 {
		return fmt.Sprintf("exit code %d", status)
	}
	name, ok := signalNames[status]
	if !ok {
		name = fmt.Sprintf("signal %d", -status)
	}
	return "killed by " + name
}

// writeErrorLog captures a post-mortem for a crashed service next to
// its sandbox files.
func writeErrorLog(h *Handle, status int) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Exit code: %d", status)
	if status < 0 {
		fmt.Fprintf(&b, " (%s)", describeExit(status))
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Command: %s\n", h.Command)
	fmt.Fprintf(&b, "CWD: %s\n", h.Path)
	fmt.Fprintf(&b, "\n--- STDERR ---\n%s\n", h.stderr.Tail(errTailBytes))
	fmt.Fprintf(&b, "\n--- STDOUT ---\n%s\n", h.stdout.Tail(errTailBytes))
	b.WriteString("\n--- FILES ---\n")
	if entries, err := os.ReadDir(h.Path); err == nil {
		for _, e := range entries {
			fmt.Fprintln(&b, e.Name())
		}
	}
	return os.WriteFile(filepath.Join(h.Path, ErrorFileName), b.Bytes(), 0644)
}
