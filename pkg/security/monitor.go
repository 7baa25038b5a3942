package security

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/pactown/pactown/pkg/log"
)

const (
	// DefaultCPUThreshold is the CPU load above which starts are throttled.
	DefaultCPUThreshold = 80.0

	// DefaultMemoryThreshold is the memory load above which starts are
	// throttled.
	DefaultMemoryThreshold = 85.0

	// monitorInterval controls how often load readings are refreshed.
	monitorInterval = 5 * time.Second

	// maxThrottleDelay caps the backpressure applied under load.
	maxThrottleDelay = 5 * time.Second
)

// Reading is one cached load sample.
type Reading struct {
	CPUPercent    float64
	MemoryPercent float64
	At            time.Time
}

// ResourceMonitor samples host CPU and memory load on a fixed interval
// and converts overload into an advisory start delay. Checks read the
// cached sample, so admission never blocks on /proc.
type ResourceMonitor struct {
	CPUThreshold    float64
	MemoryThreshold float64

	mu      sync.RWMutex
	reading Reading
	stopCh  chan struct{}
	logger  zerolog.Logger

	// probe is replaceable for tests.
	probe func() (cpuPct, memPct float64)
}

// NewResourceMonitor creates a monitor with default thresholds.
func NewResourceMonitor() *ResourceMonitor {
	return &ResourceMonitor{
		CPUThreshold:    DefaultCPUThreshold,
		MemoryThreshold: DefaultMemoryThreshold,
		stopCh:          make(chan struct{}),
		logger:          log.WithComponent("resource-monitor"),
		probe:           systemUsage,
	}
}

// Start begins periodic sampling.
func (m *ResourceMonitor) Start() {
	m.sample()
	go m.run()
}

// Stop ends periodic sampling.
func (m *ResourceMonitor) Stop() {
	close(m.stopCh)
}

func (m *ResourceMonitor) run() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopCh:
			return
		}
	}
}

func (m *ResourceMonitor) sample() {
	cpuPct, memPct := m.probe()

	m.mu.Lock()
	m.reading = Reading{CPUPercent: cpuPct, MemoryPercent: memPct, At: time.Now()}
	m.mu.Unlock()

	m.logger.Debug().
		Float64("cpu_percent", cpuPct).
		Float64("memory_percent", memPct).
		Msg("Sampled host load")
}

// Snapshot returns the most recent load sample.
func (m *ResourceMonitor) Snapshot() Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reading
}

// Overloaded reports whether either threshold is currently exceeded.
func (m *ResourceMonitor) Overloaded() (bool, Reading) {
	r := m.Snapshot()
	return r.CPUPercent > m.CPUThreshold || r.MemoryPercent > m.MemoryThreshold, r
}

// ThrottleDelay converts the current overage into a start delay:
// half a second at the threshold, growing with the overage, capped at
// maxThrottleDelay. Zero when the host is not overloaded.
func (m *ResourceMonitor) ThrottleDelay() time.Duration {
	overloaded, r := m.Overloaded()
	if !overloaded {
		return 0
	}

	cpuOver := r.CPUPercent - m.CPUThreshold
	memOver := r.MemoryPercent - m.MemoryThreshold
	over := max(cpuOver, memOver)

	delay := 0.5 + (over/20.0)*4.5
	if delay > maxThrottleDelay.Seconds() {
		return maxThrottleDelay
	}
	return time.Duration(delay * float64(time.Second))
}

// systemUsage reads host load through gopsutil. Errors degrade to zero
// readings rather than blocking admission.
func systemUsage() (float64, float64) {
	var cpuPct, memPct float64

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}
	return cpuPct, memPct
}
