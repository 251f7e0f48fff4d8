package checkpoint

import (
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
)

// cycleRecord holds timing data for a finished cycle.
type cycleRecord struct {
	Cycle      int
	Success    bool
	Duration   time.Duration
	FinishedAt time.Time
}

// Metrics holds cycle performance data.
type Metrics struct {
	CyclesPerHour   float64
	AverageDuration time.Duration
	SuccessRate     float64
	LastFailureAt   *time.Time
}

// MetricsCollector keeps a sliding window of finished cycles.
type MetricsCollector struct {
	windowSize    int
	cycles        []cycleRecord
	lastFailureAt *time.Time
}

// NewMetricsCollector creates a collector tracking the last windowSize cycles.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	return &MetricsCollector{
		windowSize: windowSize,
		cycles:     make([]cycleRecord, 0, windowSize),
	}
}

// RecordCycle records a finished cycle.
func (mc *MetricsCollector) RecordCycle(r domain.CycleResult) {
	record := cycleRecord{
		Cycle:      r.Cycle,
		Success:    r.Success,
		Duration:   r.Duration(),
		FinishedAt: r.FinishedAt,
	}

	if len(mc.cycles) >= mc.windowSize {
		copy(mc.cycles, mc.cycles[1:])
		mc.cycles[len(mc.cycles)-1] = record
	} else {
		mc.cycles = append(mc.cycles, record)
	}

	if !r.Success {
		at := r.FinishedAt
		mc.lastFailureAt = &at
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{LastFailureAt: mc.lastFailureAt}
	if len(mc.cycles) == 0 {
		return m
	}

	var total time.Duration
	succeeded := 0
	for _, c := range mc.cycles {
		total += c.Duration
		if c.Success {
			succeeded++
		}
	}
	m.AverageDuration = total / time.Duration(len(mc.cycles))
	m.SuccessRate = float64(succeeded) / float64(len(mc.cycles))

	if len(mc.cycles) >= 2 {
		first := mc.cycles[0]
		last := mc.cycles[len(mc.cycles)-1]
		span := last.FinishedAt.Sub(first.FinishedAt)
		if span > 0 {
			m.CyclesPerHour = float64(len(mc.cycles)-1) / span.Hours()
		}
	}
	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.cycles = mc.cycles[:0]
	mc.lastFailureAt = nil
}
