package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/metrics"
	"github.com/vietddude/autocycle/internal/cycle/recovery"
)

var (
	// ErrInterrupted is returned when the run stops on cancellation.
	ErrInterrupted = errors.New("cycle run interrupted")

	// ErrUnrecoverable is returned when a recovery budget is exhausted and
	// the runner is configured to halt on it.
	ErrUnrecoverable = errors.New("unrecoverable error")
)

// Classifier maps failure text to an error kind.
type Classifier interface {
	Classify(message, aux string, exitCode *int) domain.ErrorKind
}

// Recoverer records errors and applies recovery strategies.
type Recoverer interface {
	NewRecord(kind domain.ErrorKind, message, stderr string, exitCode *int, context map[string]any) domain.ErrorRecord
	Recover(ctx context.Context, rec domain.ErrorRecord) recovery.Outcome
}

// Recorder persists one checkpoint per finished cycle.
type Recorder interface {
	Record(
		ctx context.Context,
		result domain.CycleResult,
		runID string,
		subsystems map[string]domain.SubsystemStatus,
	) (*domain.Checkpoint, error)
}

// StatusSource reports subsystem statuses for the checkpoint snapshot.
type StatusSource interface {
	Statuses() map[string]domain.SubsystemStatus
}

// Config tunes the cycle loop.
type Config struct {
	Timeout         time.Duration // per-cycle work deadline; 0 = none
	Pause           time.Duration // between cycles; 0 = none
	RetryInPlace    bool
	HaltOnExhausted bool
}

// Summary describes a finished run.
type Summary struct {
	RunID            string
	Start            int
	Target           int
	LastCycle        int // 0 when no cycle finished
	Succeeded        int
	Failed           int
	Recovered        int
	CheckpointErrors int
}

// Completed is the number of cycles that ran to the end.
func (s Summary) Completed() int {
	return s.Succeeded + s.Failed
}

// Runner executes cycles sequentially, one checkpoint per cycle.
type Runner struct {
	cfg        Config
	work       Work
	classifier Classifier
	recoverer  Recoverer
	recorder   Recorder
	statuses   StatusSource
	logger     *slog.Logger
	now        func() time.Time
	runID      string
}

// New creates a runner. statuses may be nil when nothing is supervised.
func New(
	cfg Config,
	work Work,
	classifier Classifier,
	recoverer Recoverer,
	recorder Recorder,
	statuses StatusSource,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		work:       work,
		classifier: classifier,
		recoverer:  recoverer,
		recorder:   recorder,
		statuses:   statuses,
		logger:     logger,
		now:        time.Now,
		runID:      uuid.New().String(),
	}
}

// RunID identifies this runner's checkpoints.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes cycles start..target. It returns ErrInterrupted when ctx is
// cancelled and ErrUnrecoverable when halting on an exhausted budget.
func (r *Runner) Run(ctx context.Context, target, start int) (Summary, error) {
	sum := Summary{RunID: r.runID, Start: start, Target: target}
	if start < 1 {
		return sum, fmt.Errorf("invalid start cycle %d", start)
	}
	if start > target {
		r.logger.Info("Nothing to do, target already reached", "start", start, "target", target)
		return sum, nil
	}

	r.logger.Info("Starting cycles", "from", start, "to", target, "run_id", r.runID)

	for cycle := start; cycle <= target; cycle++ {
		if ctx.Err() != nil {
			return sum, ErrInterrupted
		}

		result, outcome, interrupted := r.runCycle(ctx, cycle)
		if interrupted {
			r.logger.Warn("Cycle interrupted, not checkpointed", "cycle", cycle)
			return sum, ErrInterrupted
		}

		r.record(ctx, &sum, result)

		if outcome.Exhausted && r.cfg.HaltOnExhausted {
			r.logger.Error("Halting: recovery budget exhausted", "cycle", cycle, "kind", result.ErrorKind)
			return sum, fmt.Errorf("%w: cycle %d: %s", ErrUnrecoverable, cycle, result.ErrorKind)
		}

		if cycle < target && r.cfg.Pause > 0 {
			timer := time.NewTimer(r.cfg.Pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sum, ErrInterrupted
			case <-timer.C:
			}
		}
	}

	r.logger.Info("All cycles finished",
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"recovered", sum.Recovered,
	)
	return sum, nil
}

// runCycle executes the work for one cycle and, on failure, recovery.
func (r *Runner) runCycle(ctx context.Context, cycle int) (domain.CycleResult, recovery.Outcome, bool) {
	metrics.CurrentCycle.Set(float64(cycle))
	result := domain.CycleResult{Cycle: cycle, StartedAt: r.now()}
	r.logger.Info("Cycle started", "cycle", cycle)

	err := r.attempt(ctx, cycle)
	if err == nil {
		result.Success = true
		result.FinishedAt = r.now()
		return result, recovery.Outcome{}, false
	}
	if ctx.Err() != nil {
		return result, recovery.Outcome{}, true
	}

	rec := r.toRecord(cycle, err)
	result.ErrorKind = rec.Kind
	result.Error = rec.Message
	r.logger.Error("Cycle failed", "cycle", cycle, "kind", rec.Kind, "error", rec.Message)

	outcome := r.recoverer.Recover(ctx, rec)
	result.RecoveryActions = outcome.Actions
	result.Recovered = outcome.Succeeded
	r.logger.Info("Recovery finished",
		"cycle", cycle,
		"recovered", outcome.Succeeded,
		"exhausted", outcome.Exhausted,
		"actions", outcome.Actions,
	)

	if outcome.Succeeded && r.cfg.RetryInPlace && ctx.Err() == nil {
		if err := r.attempt(ctx, cycle); err == nil {
			result.RetriedSuccess = true
			r.logger.Info("Cycle succeeded on in-place retry", "cycle", cycle)
		} else if ctx.Err() == nil {
			r.logger.Warn("In-place retry failed", "cycle", cycle, "error", err)
		}
	}

	result.FinishedAt = r.now()
	return result, outcome, false
}

// timeoutError marks work that overran the cycle deadline.
type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("cycle timed out after %s", e.after)
}

// attempt runs the work once under the cycle deadline.
func (r *Runner) attempt(ctx context.Context, cycle int) error {
	wctx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	err := r.work.Do(wctx, cycle)
	if err != nil && ctx.Err() == nil && errors.Is(wctx.Err(), context.DeadlineExceeded) {
		return &timeoutError{after: r.cfg.Timeout}
	}
	return err
}

// toRecord classifies err. Timeouts are not classified by message.
func (r *Runner) toRecord(cycle int, err error) domain.ErrorRecord {
	details := map[string]any{"cycle": cycle, "run_id": r.runID}

	var terr *timeoutError
	if errors.As(err, &terr) {
		return r.recoverer.NewRecord(domain.ErrorKindTimeout, terr.Error(), "", nil, details)
	}

	var werr *WorkError
	if errors.As(err, &werr) {
		if werr.AgentOutput != "" {
			details["agent_output"] = werr.AgentOutput
		}
		kind := r.classifier.Classify(werr.Message, werr.Stderr, werr.ExitCode)
		return r.recoverer.NewRecord(kind, werr.Message, werr.Stderr, werr.ExitCode, details)
	}

	kind := r.classifier.Classify(err.Error(), "", nil)
	return r.recoverer.NewRecord(kind, err.Error(), "", nil, details)
}

// record saves the checkpoint and updates run counters. Save errors are
// logged and counted, never retried.
func (r *Runner) record(ctx context.Context, sum *Summary, result domain.CycleResult) {
	sum.LastCycle = result.Cycle
	outcome := "success"
	if result.Success {
		sum.Succeeded++
	} else {
		sum.Failed++
		outcome = "failure"
		if result.ErrorKind == domain.ErrorKindTimeout {
			outcome = "timeout"
		}
		if result.Recovered {
			sum.Recovered++
		}
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(result.Duration().Seconds())

	var subsystems map[string]domain.SubsystemStatus
	if r.statuses != nil {
		subsystems = r.statuses.Statuses()
	}

	// A checkpoint is written even when shutdown has begun.
	if _, err := r.recorder.Record(context.WithoutCancel(ctx), result, r.runID, subsystems); err != nil {
		sum.CheckpointErrors++
		r.logger.Error("Failed to save checkpoint", "cycle", result.Cycle, "error", err)
		return
	}

	r.logger.Info("Cycle completed",
		"cycle", result.Cycle,
		"target", sum.Target,
		"success", result.Success,
		"duration", result.Duration().Round(time.Millisecond),
	)
}
