package domain

import "time"

// Checkpoint is the durable record of one cycle's outcome.
type Checkpoint struct {
	Cycle      int                        `json:"cycle"`
	Timestamp  time.Time                  `json:"timestamp"`
	Data       map[string]any             `json:"data"`
	Subsystems map[string]SubsystemStatus `json:"subsystems_status"`
}

// Succeeded reads the success flag folded into the payload.
func (c *Checkpoint) Succeeded() bool {
	if c == nil || c.Data == nil {
		return false
	}
	ok, _ := c.Data["success"].(bool)
	return ok
}

// CycleResult is the outcome of a single cycle before it is persisted.
type CycleResult struct {
	Cycle           int
	Success         bool
	StartedAt       time.Time
	FinishedAt      time.Time
	ErrorKind       ErrorKind
	Error           string
	RecoveryActions []string
	Recovered       bool
	RetriedSuccess  bool
}

// Duration returns the wall time spent in the cycle.
func (r CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Payload folds the result into a checkpoint payload.
func (r CycleResult) Payload(runID string) map[string]any {
	p := map[string]any{
		"success":         r.Success,
		"completion_time": r.FinishedAt.Format(time.RFC3339),
		"duration_ms":     r.Duration().Milliseconds(),
		"run_id":          runID,
	}
	if r.ErrorKind != "" {
		p["error_kind"] = string(r.ErrorKind)
		p["error"] = r.Error
		p["recovery_actions"] = r.RecoveryActions
		p["recovered"] = r.Recovered
	}
	if r.RetriedSuccess {
		p["retried_success"] = true
	}
	return p
}
