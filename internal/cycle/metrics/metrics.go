package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks finished cycles by outcome (success, failure, timeout)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_cycles_total",
			Help: "Total number of cycles executed",
		},
		[]string{"outcome"},
	)

	// CycleDuration tracks how long a unit of work takes
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autocycle_cycle_duration_seconds",
			Help:    "Cycle duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// CurrentCycle tracks the cycle most recently started
	CurrentCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocycle_current_cycle",
			Help: "Cycle number currently executing",
		},
	)

	// CheckpointWrites tracks checkpoint persistence by result
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_checkpoint_writes_total",
			Help: "Checkpoint writes by result",
		},
		[]string{"result"},
	)

	// ErrorsTotal tracks classified errors per kind
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_errors_total",
			Help: "Total number of classified errors",
		},
		[]string{"kind"},
	)

	// RecoveryAttempts tracks strategy executions per kind, strategy and result
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_recovery_attempts_total",
			Help: "Recovery strategy executions",
		},
		[]string{"kind", "strategy", "result"},
	)

	// RecoveryExhausted tracks errors refused because the retry budget was spent
	RecoveryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_recovery_exhausted_total",
			Help: "Errors skipped because the retry budget was exceeded",
		},
		[]string{"kind"},
	)

	// SubsystemUp is 1 while a subsystem process is alive
	SubsystemUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autocycle_subsystem_up",
			Help: "Whether a supervised subsystem is running",
		},
		[]string{"subsystem"},
	)

	// SubsystemRestarts tracks supervisor relaunches
	SubsystemRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocycle_subsystem_restarts_total",
			Help: "Total number of subsystem restarts",
		},
		[]string{"subsystem"},
	)

	// HostCPUPercent, HostMemoryPercent and HostDiskFreeBytes mirror the monitor's host sample
	HostCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocycle_host_cpu_percent",
			Help: "Host CPU utilisation",
		},
	)

	HostMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocycle_host_memory_percent",
			Help: "Host memory utilisation",
		},
	)

	HostDiskFreeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocycle_host_disk_free_bytes",
			Help: "Free bytes on the project volume",
		},
	)

	// DBConnectionPoolUsage tracks open connections as a share of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocycle_db_connection_pool_usage_percent",
			Help: "Database connection pool usage",
		},
	)
)
