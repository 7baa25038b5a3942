package network

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/log"
)

const (
	// MinSafePort is the lowest port the allocator will ever hand out.
	// Preferred ports below it are ignored, not errors.
	MinSafePort = 1024

	// DefaultRangeStart and DefaultRangeEnd bound the scan when no
	// range override is configured.
	DefaultRangeStart = 10000
	DefaultRangeEnd   = 65000

	// EnvPortRange overrides the scan range, formatted "lo-hi".
	EnvPortRange = "PACTOWN_PORT_RANGE"
)

// PortAllocator hands out TCP ports that are free on the local host.
// Freeness is probed by binding the loopback address; the issued set
// prevents double allocation between probe and use.
type PortAllocator struct {
	mu     sync.Mutex
	issued map[int]bool
	lo, hi int
	logger zerolog.Logger
}

// NewPortAllocator builds an allocator over the default range, honoring
// the PACTOWN_PORT_RANGE override.
func NewPortAllocator() (*PortAllocator, error) {
	lo, hi := DefaultRangeStart, DefaultRangeEnd
	if env := os.Getenv(EnvPortRange); env != "" {
		var err error
		lo, hi, err = ParseRange(env)
		if err != nil {
			return nil, err
		}
	}
	return NewPortAllocatorRange(lo, hi)
}

// NewPortAllocatorRange builds an allocator scanning [lo, hi]. The low
// bound is clamped to MinSafePort, the high bound to 65535.
func NewPortAllocatorRange(lo, hi int) (*PortAllocator, error) {
	if lo < MinSafePort {
		lo = MinSafePort
	}
	if hi > 65535 {
		hi = 65535
	}
	if lo > hi {
		return nil, errdefs.Config("invalid port range %d-%d", lo, hi)
	}
	return &PortAllocator{
		issued: make(map[int]bool),
		lo:     lo,
		hi:     hi,
		logger: log.WithComponent("ports"),
	}, nil
}

// ParseRange parses a "lo-hi" range string.
func ParseRange(s string) (int, int, error) {
	loStr, hiStr, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, errdefs.Config("port range %q must be formatted lo-hi", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return 0, 0, errdefs.Config("port range %q: bad low bound", s)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return 0, 0, errdefs.Config("port range %q: bad high bound", s)
	}
	if lo <= 0 || hi <= 0 || lo > hi {
		return 0, 0, errdefs.Config("port range %q: bounds out of order", s)
	}
	return lo, hi, nil
}

// Allocate returns a free port. A preferred port is honored when it is
// at or above MinSafePort, not already issued, and currently free;
// otherwise the range is scanned upward.
func (a *PortAllocator) Allocate(preferred int) (int, error) {
	if preferred >= MinSafePort && a.tryClaim(preferred) {
		a.logger.Debug().Int("port", preferred).Msg("Allocated preferred port")
		return preferred, nil
	}

	for port := a.lo; port <= a.hi; port++ {
		if a.tryClaim(port) {
			if preferred != 0 && preferred != port {
				a.logger.Debug().
					Int("preferred", preferred).
					Int("port", port).
					Msg("Preferred port unavailable, scanned alternative")
			} else {
				a.logger.Debug().Int("port", port).Msg("Allocated port")
			}
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: range %d-%d exhausted", errdefs.ErrNoFreePort, a.lo, a.hi)
}

// Reserve marks a port as issued without probing it. Used when
// rebuilding allocator state from persisted endpoints.
func (a *PortAllocator) Reserve(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issued[port] = true
}

// Release returns a port to the pool. Releasing an unissued port is a
// no-op.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.issued, port)
}

// ReleaseAll clears the issued set.
func (a *PortAllocator) ReleaseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issued = make(map[int]bool)
}

// Issued returns the currently issued ports in ascending order.
func (a *PortAllocator) Issued() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	ports := make([]int, 0, len(a.issued))
	for port := range a.issued {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// tryClaim probes port and marks it issued on success. The mutex is
// held only around the set operations, never across the bind.
func (a *PortAllocator) tryClaim(port int) bool {
	a.mu.Lock()
	if a.issued[port] {
		a.mu.Unlock()
		return false
	}
	a.mu.Unlock()

	if !PortFree(port) {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.issued[port] {
		return false
	}
	a.issued[port] = true
	return true
}

// PortFree reports whether port can be bound on loopback right now.
// Any bind failure counts as unavailable; transient errors just mean
// the scan moves on.
func PortFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
