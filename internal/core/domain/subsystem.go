package domain

import "time"

// SubsystemStatus is the lifecycle state of a supervised process.
type SubsystemStatus string

const (
	SubsystemStarting   SubsystemStatus = "starting"
	SubsystemRunning    SubsystemStatus = "running"
	SubsystemCompleted  SubsystemStatus = "completed"
	SubsystemFailed     SubsystemStatus = "failed"
	SubsystemRestarting SubsystemStatus = "restarting"
	SubsystemStopped    SubsystemStatus = "stopped"
)

// Subsystem describes how to launch a supervised background process.
type Subsystem struct {
	Name     string   `yaml:"name"     json:"name"`
	Command  []string `yaml:"command"  json:"command"`
	Dir      string   `yaml:"dir"      json:"dir"`
	Critical bool     `yaml:"critical" json:"critical"`
}

// SubsystemState is a point-in-time view of a supervised process.
type SubsystemState struct {
	Name      string          `json:"name"`
	Status    SubsystemStatus `json:"status"`
	PID       int             `json:"pid"`
	StartedAt time.Time       `json:"started_at"`
	ExitCode  *int            `json:"exit_code,omitempty"`
	Restarts  int             `json:"restarts"`
	Critical  bool            `json:"critical"`
}
