package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/exec"
)

// Request is what a strategy sees: the record and how many same-kind
// records preceded it in the window.
type Request struct {
	Record  domain.ErrorRecord
	Attempt int
}

// Result reports whether a strategy fixed the problem.
type Result struct {
	Success     bool
	Description string
}

// Strategy is one recovery action. A returned error means the strategy
// itself broke, as opposed to running and not helping.
type Strategy interface {
	Apply(ctx context.Context, req Request) (Result, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, req Request) (Result, error)

// Apply calls f.
func (f StrategyFunc) Apply(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// SubsystemRestarter restarts a supervised process by name.
type SubsystemRestarter interface {
	Restart(ctx context.Context, name string) error
}

// StrategyConfig carries what the built-in strategies act on.
type StrategyConfig struct {
	ProjectRoot       string
	CacheDirs         []string
	ResetCommands     []string
	FallbackCommands  []string
	RestartSubsystems []string
	RetryDelay        time.Duration
	NetworkRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	CommandTimeout    time.Duration
}

// DefaultStrategies builds the six built-in strategies. restarter may be nil,
// in which case restart_subsystem always reports failure.
func DefaultStrategies(
	cfg StrategyConfig,
	executor exec.Executor,
	restarter SubsystemRestarter,
	logger *slog.Logger,
) map[domain.StrategyKind]Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Minute
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 2 * time.Minute
	}

	return map[domain.StrategyKind]Strategy{
		domain.StrategyRetry:              &retryStrategy{cfg: cfg},
		domain.StrategyClearCache:         &clearCacheStrategy{root: cfg.ProjectRoot, dirs: cfg.CacheDirs},
		domain.StrategyResetEnvironment:   &commandStrategy{cfg: cfg, executor: executor, commands: cfg.ResetCommands, what: "reset"},
		domain.StrategyFallbackMethod:     &commandStrategy{cfg: cfg, executor: executor, commands: cfg.FallbackCommands, what: "fallback", firstWins: true},
		domain.StrategyRestartSubsystem:   &restartStrategy{names: cfg.RestartSubsystems, restarter: restarter},
		domain.StrategyManualIntervention: &manualStrategy{logger: logger},
	}
}

// =============================================================================
// retry
// =============================================================================

// retryStrategy waits out the failure so the next cycle starts clean.
type retryStrategy struct {
	cfg StrategyConfig
}

func (s *retryStrategy) Apply(ctx context.Context, req Request) (Result, error) {
	initial := s.cfg.RetryDelay
	if req.Record.Kind == domain.ErrorKindNetwork && s.cfg.NetworkRetryDelay > 0 {
		initial = s.cfg.NetworkRetryDelay
	}
	delay := ExponentialBackoff{InitialDelay: initial, MaxDelay: s.cfg.MaxRetryDelay}.GetDelay(req.Attempt)

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Result{Success: true, Description: fmt.Sprintf("waited %s before retry", delay)}, nil
}

// =============================================================================
// clear_cache
// =============================================================================

type clearCacheStrategy struct {
	root string
	dirs []string
}

func (s *clearCacheStrategy) Apply(ctx context.Context, req Request) (Result, error) {
	if len(s.dirs) == 0 {
		return Result{Description: "no cache directories configured"}, nil
	}

	var cleared []string
	for _, dir := range s.dirs {
		path := dir
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, dir)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return Result{}, fmt.Errorf("failed to clear %s: %w", path, err)
		}
		cleared = append(cleared, path)
	}

	if len(cleared) == 0 {
		return Result{Success: true, Description: "cache directories already clean"}, nil
	}
	return Result{Success: true, Description: "cleared " + strings.Join(cleared, ", ")}, nil
}

// =============================================================================
// reset_environment / fallback_method
// =============================================================================

// commandStrategy runs shell commands in the project root. By default every
// command must succeed; with firstWins the first success is enough.
type commandStrategy struct {
	cfg       StrategyConfig
	executor  exec.Executor
	commands  []string
	what      string
	firstWins bool
}

func (s *commandStrategy) Apply(ctx context.Context, req Request) (Result, error) {
	if len(s.commands) == 0 {
		return Result{Description: fmt.Sprintf("no %s commands configured", s.what)}, nil
	}

	var failed []string
	for _, line := range s.commands {
		err := s.run(ctx, line)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if err == nil && s.firstWins {
			return Result{Success: true, Description: fmt.Sprintf("%s succeeded via %q", s.what, line)}, nil
		}
		if err != nil {
			if !s.firstWins {
				return Result{Description: fmt.Sprintf("command %q failed: %v", line, err)}, nil
			}
			failed = append(failed, line)
		}
	}

	if s.firstWins {
		return Result{Description: fmt.Sprintf("all %d %s commands failed", len(failed), s.what)}, nil
	}
	return Result{Success: true, Description: fmt.Sprintf("%s ran %d commands", s.what, len(s.commands))}, nil
}

func (s *commandStrategy) run(ctx context.Context, line string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	name, args := exec.Shell(line)
	_, stderr, err := s.executor.Run(ctx, s.cfg.ProjectRoot, name, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return fmt.Errorf("%w: %s", err, truncate(msg, 200))
		}
		return err
	}
	return nil
}

// =============================================================================
// restart_subsystem
// =============================================================================

type restartStrategy struct {
	names     []string
	restarter SubsystemRestarter
}

func (s *restartStrategy) Apply(ctx context.Context, req Request) (Result, error) {
	if s.restarter == nil || len(s.names) == 0 {
		return Result{Description: "no subsystems configured for restart"}, nil
	}
	for _, name := range s.names {
		if err := s.restarter.Restart(ctx, name); err != nil {
			return Result{Description: fmt.Sprintf("restart of %s failed: %v", name, err)}, nil
		}
	}
	return Result{Success: true, Description: "restarted " + strings.Join(s.names, ", ")}, nil
}

// =============================================================================
// manual_intervention
// =============================================================================

// manualStrategy never fixes anything; it tells the operator what to look at.
type manualStrategy struct {
	logger *slog.Logger
}

func (s *manualStrategy) Apply(ctx context.Context, req Request) (Result, error) {
	msg := fmt.Sprintf("manual review required for %s: %s", req.Record.Kind, truncate(req.Record.Message, 200))
	s.logger.Warn("Manual intervention required",
		"kind", req.Record.Kind,
		"error_id", req.Record.ID,
		"message", truncate(req.Record.Message, 200),
		"hint", hintFor(req.Record.Kind),
	)
	return Result{Description: msg}, nil
}

func hintFor(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrorKindPermission:
		return "check file ownership and that the process user can write the project directory"
	case domain.ErrorKindEnvironment:
		return "check PATH and that the required toolchain is installed"
	default:
		return "inspect the recovery log and the failing command output"
	}
}
