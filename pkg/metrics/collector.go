package metrics

import (
	"time"
)

// StatsSource is what the collector polls. The orchestrator engine
// implements it.
type StatsSource interface {
	RunningCount() int
	CacheEntryCount() int
}

// Collector periodically refreshes gauge metrics from a StatsSource.
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector polling source every 15 seconds.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ServicesRunning.Set(float64(c.source.RunningCount()))
	CacheEntries.Set(float64(c.source.CacheEntryCount()))
}
