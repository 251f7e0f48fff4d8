package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/procfs"
)

// HostSampler reads host resource usage.
type HostSampler interface {
	CPUPercent() (float64, error)
	MemoryPercent() (float64, error)
	DiskFree(path string) (uint64, error)
}

// ProcSampler reads CPU and memory from /proc and disk space via statfs.
type ProcSampler struct {
	mu   sync.Mutex
	prev *procfs.CPUStat
}

// NewProcSampler creates a host sampler.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{}
}

// CPUPercent returns busy CPU share since the previous call, or since boot
// on the first call.
func (s *ProcSampler) CPUPercent() (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("procfs unavailable: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to read cpu stats: %w", err)
	}

	cur := stat.CPUTotal
	s.mu.Lock()
	prev := s.prev
	s.prev = &cur
	s.mu.Unlock()

	total, idle := cpuTimes(cur)
	if prev != nil {
		prevTotal, prevIdle := cpuTimes(*prev)
		total -= prevTotal
		idle -= prevIdle
	}
	if total <= 0 {
		return 0, nil
	}
	return 100 * (total - idle) / total, nil
}

func cpuTimes(c procfs.CPUStat) (total, idle float64) {
	idle = c.Idle + c.Iowait
	total = idle + c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return total, idle
}

// MemoryPercent returns used memory as a share of total.
func (s *ProcSampler) MemoryPercent() (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("procfs unavailable: %w", err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return 0, errors.New("meminfo missing MemTotal or MemAvailable")
	}
	used := *mi.MemTotal - *mi.MemAvailable
	return 100 * float64(used) / float64(*mi.MemTotal), nil
}

// DiskFree returns bytes available to unprivileged users on path's filesystem.
func (s *ProcSampler) DiskFree(path string) (uint64, error) {
	return diskFree(path)
}
