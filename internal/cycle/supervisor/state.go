package supervisor

import (
	"errors"
	"slices"

	"github.com/vietddude/autocycle/internal/core/domain"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed status changes.
// Key is the current status, value is the list of valid next statuses.
var ValidTransitions = map[domain.SubsystemStatus][]domain.SubsystemStatus{
	domain.SubsystemStarting: {
		domain.SubsystemRunning,
		domain.SubsystemFailed,
		domain.SubsystemRestarting,
		domain.SubsystemStopped,
	},
	domain.SubsystemRunning: {
		domain.SubsystemCompleted,
		domain.SubsystemFailed,
		domain.SubsystemRestarting,
		domain.SubsystemStopped,
	},
	domain.SubsystemCompleted:  {domain.SubsystemRestarting, domain.SubsystemStopped},
	domain.SubsystemFailed:     {domain.SubsystemRestarting, domain.SubsystemStopped},
	domain.SubsystemRestarting: {domain.SubsystemStarting, domain.SubsystemFailed, domain.SubsystemStopped},
	domain.SubsystemStopped:    {},
}

// CanTransition checks if a change from one status to another is valid.
func CanTransition(from, to domain.SubsystemStatus) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Alive reports whether a process is expected to be running in this status.
func Alive(s domain.SubsystemStatus) bool {
	return s == domain.SubsystemStarting || s == domain.SubsystemRunning
}
