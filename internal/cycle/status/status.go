// Package status samples a read-only view of the running system and serves it over HTTP.
package status

import (
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
)

// SystemStatus represents the overall health state of the system.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Reading is a sampled value, or the reason it could not be read.
type Reading struct {
	Value       float64 `json:"value"`
	Unavailable string  `json:"unavailable,omitempty"`
}

// Available wraps a successfully sampled value.
func Available(v float64) Reading {
	return Reading{Value: v}
}

// Unavailable marks a value that could not be read.
func Unavailable(err error) Reading {
	return Reading{Unavailable: err.Error()}
}

// OK reports whether the value was read.
func (r Reading) OK() bool {
	return r.Unavailable == ""
}

// HostStats are host resource readings.
type HostStats struct {
	CPUPercent    Reading `json:"cpu_percent"`
	MemoryPercent Reading `json:"memory_percent"`
	DiskFreeBytes Reading `json:"disk_free_bytes"`
}

// CheckpointInfo summarizes the latest checkpoint.
type CheckpointInfo struct {
	Cycle     int       `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// Snapshot is an immutable point-in-time view.
type Snapshot struct {
	TakenAt               time.Time                `json:"taken_at"`
	Status                SystemStatus             `json:"status"`
	Subsystems            []domain.SubsystemState  `json:"subsystems"`
	LatestCheckpoint      *CheckpointInfo          `json:"latest_checkpoint,omitempty"`
	CheckpointUnavailable string                   `json:"checkpoint_unavailable,omitempty"`
	ErrorTotal            int                      `json:"error_total"`
	ErrorsByKind          map[domain.ErrorKind]int `json:"errors_by_kind"`
	Host                  HostStats                `json:"host"`
}
