package domain

import (
	"slices"
	"time"
)

// ErrorKind classifies a failure signal.
type ErrorKind string

const (
	ErrorKindBuildFailure ErrorKind = "build_failure"
	ErrorKindDependency   ErrorKind = "dependency_error"
	ErrorKindPermission   ErrorKind = "permission_error"
	ErrorKindNetwork      ErrorKind = "network_error"
	ErrorKindTimeout      ErrorKind = "timeout_error"
	ErrorKindExternalTool ErrorKind = "external_tool_error"
	ErrorKindEnvironment  ErrorKind = "environment_error"
	ErrorKindUnknown      ErrorKind = "unknown_error"
)

// ErrorKinds lists every kind in classification order, unknown last.
var ErrorKinds = []ErrorKind{
	ErrorKindBuildFailure,
	ErrorKindDependency,
	ErrorKindPermission,
	ErrorKindNetwork,
	ErrorKindTimeout,
	ErrorKindExternalTool,
	ErrorKindEnvironment,
	ErrorKindUnknown,
}

// Valid reports whether k is one of the known kinds.
func (k ErrorKind) Valid() bool {
	for _, known := range ErrorKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrorRecord is a single classified failure. Records are never mutated after creation.
type ErrorRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      ErrorKind      `json:"type"`
	Message   string         `json:"message"`
	Stderr    string         `json:"stderr"`
	ExitCode  *int           `json:"exit_code"`
	Context   map[string]any `json:"context,omitempty"`
}

// StrategyKind names a recovery action family.
type StrategyKind string

const (
	StrategyRetry              StrategyKind = "retry"
	StrategyResetEnvironment   StrategyKind = "reset_environment"
	StrategyRestartSubsystem   StrategyKind = "restart_subsystem"
	StrategyClearCache         StrategyKind = "clear_cache"
	StrategyFallbackMethod     StrategyKind = "fallback_method"
	StrategyManualIntervention StrategyKind = "manual_intervention"
)

// StrategyKinds lists every built-in strategy.
var StrategyKinds = []StrategyKind{
	StrategyRetry,
	StrategyResetEnvironment,
	StrategyRestartSubsystem,
	StrategyClearCache,
	StrategyFallbackMethod,
	StrategyManualIntervention,
}

// Valid reports whether s is one of the built-in strategies.
func (s StrategyKind) Valid() bool {
	return slices.Contains(StrategyKinds, s)
}
