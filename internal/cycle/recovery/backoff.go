package recovery

import (
	"math"
	"time"
)

// ExponentialBackoff computes retry delays: InitialDelay * 2^attempt, capped.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff returns 5s, 10s, 20s, 40s (max 60s).
func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// GetDelay returns the delay for the given attempt (0-indexed).
func (s ExponentialBackoff) GetDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}
