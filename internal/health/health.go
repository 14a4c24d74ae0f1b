// Package health reports process resource usage and event-store
// reachability, for an outer bootstrap evaluator running many parallel
// simulation processes to monitor without instrumenting each one
// individually.
//
// Uses the cpu.Percent/mem.VirtualMemory pair from shirou/gopsutil/v3,
// sampled over a short window chosen to avoid blocking the caller.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// EventStorePinger is the subset of internal/eventstore.Store a
// Checker needs to verify the store is reachable.
type EventStorePinger interface {
	Ping(ctx context.Context) error
}

// Checker reports process and event-store health.
type Checker struct {
	store EventStorePinger
	log   zerolog.Logger
}

// New builds a Checker. store may be nil if no event store is wired
// (e.g. a dry-run simulation with no persistence configured).
func New(store EventStorePinger, log zerolog.Logger) *Checker {
	return &Checker{store: store, log: log.With().Str("component", "health").Logger()}
}

// Report is the JSON shape served at GET /health.
type Report struct {
	Healthy       bool    `json:"healthy"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	EventStoreOK  bool    `json:"event_store_ok"`
	EventStoreErr string  `json:"event_store_error,omitempty"`
}

// Check samples CPU/memory over a short window and pings the event
// store, returning a Report and whether the process is overall
// healthy (event-store reachability is the only thing that can mark a
// running simulation unhealthy; resource usage is informational only).
func (c *Checker) Check() (bool, map[string]interface{}) {
	r := c.buildReport()
	detail := map[string]interface{}{
		"healthy":        r.Healthy,
		"cpu_percent":    r.CPUPercent,
		"memory_percent": r.MemoryPercent,
		"event_store_ok": r.EventStoreOK,
	}
	if r.EventStoreErr != "" {
		detail["event_store_error"] = r.EventStoreErr
	}
	return r.Healthy, detail
}

func (c *Checker) buildReport() Report {
	r := Report{Healthy: true, EventStoreOK: true}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to sample cpu percent")
	} else if len(cpuPercent) > 0 {
		r.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to sample memory stats")
	} else {
		r.MemoryPercent = memStat.UsedPercent
	}

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.store.Ping(ctx); err != nil {
			r.EventStoreOK = false
			r.EventStoreErr = err.Error()
			r.Healthy = false
		}
	}

	return r
}
