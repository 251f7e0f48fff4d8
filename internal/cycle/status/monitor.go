package status

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/vietddude/autocycle/internal/core/checkpoint"
	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/metrics"
	"github.com/vietddude/autocycle/internal/cycle/recovery"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

// SubsystemSource reports supervised subsystem states.
type SubsystemSource interface {
	Snapshot() []domain.SubsystemState
}

// ErrorSource summarizes recent errors.
type ErrorSource interface {
	Summary() recovery.Summary
}

// Config tunes sampling.
type Config struct {
	Interval time.Duration
	DiskPath string
}

// Monitor samples subsystem, checkpoint, error and host state into
// snapshots. It never changes any of them.
type Monitor struct {
	cfg         Config
	subsystems  SubsystemSource
	checkpoints checkpoint.Loader
	errors      ErrorSource
	host        HostSampler
	scheduler   schedule.Scheduler
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewMonitor creates a new status monitor. Any source may be nil.
func NewMonitor(
	cfg Config,
	subsystems SubsystemSource,
	checkpoints checkpoint.Loader,
	errors ErrorSource,
	host HostSampler,
	scheduler schedule.Scheduler,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "."
	}
	if scheduler == nil {
		scheduler = schedule.Ticker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:         cfg,
		subsystems:  subsystems,
		checkpoints: checkpoints,
		errors:      errors,
		host:        host,
		scheduler:   scheduler,
		logger:      logger,
		now:         time.Now,
	}
}

// Run samples on every scheduler tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticks, stop := m.scheduler.Every(m.cfg.Interval)
	defer stop()

	m.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			snap := m.Sample(ctx)
			m.logger.Debug("Status sampled",
				"status", snap.Status,
				"subsystems", len(snap.Subsystems),
				"errors", snap.ErrorTotal,
				"cpu", snap.Host.CPUPercent,
				"memory", snap.Host.MemoryPercent,
			)
		}
	}
}

// Sample takes a new snapshot and makes it the latest.
func (m *Monitor) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{
		TakenAt:      m.now(),
		ErrorsByKind: map[domain.ErrorKind]int{},
	}

	if m.subsystems != nil {
		snap.Subsystems = m.subsystems.Snapshot()
	}

	if m.checkpoints != nil {
		cp, err := m.checkpoints.LoadLatest(ctx)
		switch {
		case err != nil:
			snap.CheckpointUnavailable = err.Error()
		case cp != nil:
			snap.LatestCheckpoint = &CheckpointInfo{
				Cycle:     cp.Cycle,
				Timestamp: cp.Timestamp,
				Success:   cp.Succeeded(),
			}
		}
	}

	if m.errors != nil {
		sum := m.errors.Summary()
		snap.ErrorTotal = sum.Total
		snap.ErrorsByKind = maps.Clone(sum.ByKind)
	}

	snap.Host = m.sampleHost()
	snap.Status = evaluate(snap)
	m.publish(snap)

	m.mu.Lock()
	m.last = &snap
	m.mu.Unlock()
	return snap
}

func (m *Monitor) sampleHost() HostStats {
	if m.host == nil {
		missing := Unavailable(fmt.Errorf("no host sampler"))
		return HostStats{CPUPercent: missing, MemoryPercent: missing, DiskFreeBytes: missing}
	}

	var hs HostStats
	if v, err := m.host.CPUPercent(); err != nil {
		hs.CPUPercent = Unavailable(err)
	} else {
		hs.CPUPercent = Available(v)
	}
	if v, err := m.host.MemoryPercent(); err != nil {
		hs.MemoryPercent = Unavailable(err)
	} else {
		hs.MemoryPercent = Available(v)
	}
	if v, err := m.host.DiskFree(m.cfg.DiskPath); err != nil {
		hs.DiskFreeBytes = Unavailable(err)
	} else {
		hs.DiskFreeBytes = Available(float64(v))
	}
	return hs
}

func (m *Monitor) publish(snap Snapshot) {
	if snap.Host.CPUPercent.OK() {
		metrics.HostCPUPercent.Set(snap.Host.CPUPercent.Value)
	}
	if snap.Host.MemoryPercent.OK() {
		metrics.HostMemoryPercent.Set(snap.Host.MemoryPercent.Value)
	}
	if snap.Host.DiskFreeBytes.OK() {
		metrics.HostDiskFreeBytes.Set(snap.Host.DiskFreeBytes.Value)
	}
}

// Latest returns the most recent snapshot, sampling one if none exists.
func (m *Monitor) Latest(ctx context.Context) Snapshot {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()
	if last != nil {
		return *last
	}
	return m.Sample(ctx)
}

// evaluate derives the overall status. Worst case wins.
func evaluate(s Snapshot) SystemStatus {
	status := StatusHealthy
	for _, sub := range s.Subsystems {
		if sub.Status != domain.SubsystemFailed {
			continue
		}
		if sub.Critical {
			return StatusCritical
		}
		status = StatusDegraded
	}
	if s.CheckpointUnavailable != "" {
		status = StatusDegraded
	}
	return status
}
