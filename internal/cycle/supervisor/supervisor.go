package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/metrics"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

var (
	// ErrSubsystemNotFound is returned for names not under supervision.
	ErrSubsystemNotFound = errors.New("subsystem not found")

	// ErrStopped is returned when restarting after Stop.
	ErrStopped = errors.New("supervisor stopped")
)

// DefaultMaxRestarts applies when Config.MaxRestarts is zero.
const DefaultMaxRestarts = 3

// Config tunes supervision. Zero values take defaults.
type Config struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
	// MaxRestarts bounds relaunches of a critical subsystem. Negative
	// disables relaunching.
	MaxRestarts    int
	RestartBackoff time.Duration
	MaxBackoff     time.Duration
}

// entry is the supervisor's bookkeeping for one subsystem.
type entry struct {
	spec          domain.Subsystem
	state         domain.SubsystemState
	proc          Process
	backoff       retry.Backoff
	nextRestartAt time.Time
	gaveUp        bool
}

// Supervisor launches named subsystems, watches them on each poll and
// relaunches critical ones that fail.
type Supervisor struct {
	cfg       Config
	launcher  Launcher
	scheduler schedule.Scheduler
	logger    *slog.Logger
	health    *health.Server
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	stopped bool
}

// New creates a supervisor for specs. Names must be unique.
func New(
	cfg Config,
	specs []domain.Subsystem,
	launcher Launcher,
	scheduler schedule.Scheduler,
	logger *slog.Logger,
) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if scheduler == nil {
		scheduler = schedule.Ticker{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}

	s := &Supervisor{
		cfg:       cfg,
		launcher:  launcher,
		scheduler: scheduler,
		logger:    logger,
		health:    health.NewServer(),
		now:       time.Now,
		entries:   make(map[string]*entry, len(specs)),
	}

	for _, spec := range specs {
		if _, dup := s.entries[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate subsystem name %q", spec.Name)
		}
		s.entries[spec.Name] = &entry{
			spec: spec,
			state: domain.SubsystemState{
				Name:     spec.Name,
				Status:   domain.SubsystemStopped,
				Critical: spec.Critical,
			},
			backoff: s.newBackoff(),
		}
		s.order = append(s.order, spec.Name)
		s.health.SetServingStatus(spec.Name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s, nil
}

func (s *Supervisor) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.RestartBackoff)
	b = retry.WithCappedDuration(s.cfg.MaxBackoff, b)
	return retry.WithMaxRetries(uint64(max(s.cfg.MaxRestarts, 0)), b)
}

// HealthServer exposes subsystem liveness as gRPC health statuses.
func (s *Supervisor) HealthServer() healthpb.HealthServer {
	return s.health
}

// Start launches every subsystem. Launch failures are logged and left to
// the poll loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	for _, name := range s.order {
		e := s.entries[name]
		e.state.Status = domain.SubsystemStarting
		s.launch(ctx, e)
	}
	return nil
}

// Run polls subsystems on every scheduler tick until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	ticks, stop := s.scheduler.Every(s.cfg.PollInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.Check(ctx)
		}
	}
}

// Check performs one supervision pass.
func (s *Supervisor) Check(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	for _, name := range s.order {
		e := s.entries[name]

		switch e.state.Status {
		case domain.SubsystemRunning, domain.SubsystemStarting:
			if e.proc == nil {
				continue
			}
			select {
			case <-e.proc.Done():
				s.handleExit(e)
			default:
			}

		case domain.SubsystemFailed:
			if !e.spec.Critical || e.gaveUp || e.nextRestartAt.IsZero() {
				continue
			}
			if s.now().Before(e.nextRestartAt) {
				continue
			}
			s.relaunch(ctx, e, "critical subsystem failed")
		}
	}
}

// handleExit records a finished process and schedules a restart when needed.
func (s *Supervisor) handleExit(e *entry) {
	code := e.proc.ExitCode()
	e.state.ExitCode = &code

	if code == 0 {
		s.transition(e, domain.SubsystemCompleted, "exited cleanly")
		e.backoff = s.newBackoff()
		return
	}

	s.transition(e, domain.SubsystemFailed, fmt.Sprintf("exit code %d", code))
	if e.spec.Critical {
		s.scheduleRestart(e)
	}
}

func (s *Supervisor) scheduleRestart(e *entry) {
	delay, stop := e.backoff.Next()
	if stop {
		e.gaveUp = true
		e.nextRestartAt = time.Time{}
		s.logger.Error("Subsystem restart limit reached",
			"subsystem", e.spec.Name,
			"max_restarts", s.cfg.MaxRestarts,
		)
		return
	}
	e.nextRestartAt = s.now().Add(delay)
	s.logger.Warn("Scheduling subsystem restart", "subsystem", e.spec.Name, "in", delay)
}

// relaunch replaces e's process with a fresh one from the original spec.
// Callers hold s.mu.
func (s *Supervisor) relaunch(ctx context.Context, e *entry, reason string) {
	s.transition(e, domain.SubsystemRestarting, reason)
	if e.proc != nil {
		// Lingering handle, already exited
		_ = e.proc.Kill()
		e.proc = nil
	}

	e.state.Restarts++
	e.nextRestartAt = time.Time{}
	metrics.SubsystemRestarts.WithLabelValues(e.spec.Name).Inc()

	s.transition(e, domain.SubsystemStarting, "relaunching")
	s.launch(ctx, e)
}

// launch starts e from starting status. Callers hold s.mu.
func (s *Supervisor) launch(ctx context.Context, e *entry) {
	proc, err := s.launcher.Launch(ctx, e.spec)
	if err != nil {
		s.logger.Error("Failed to launch subsystem", "subsystem", e.spec.Name, "error", err)
		e.state.ExitCode = nil
		s.transition(e, domain.SubsystemFailed, "launch failed")
		if e.spec.Critical {
			s.scheduleRestart(e)
		}
		return
	}

	e.proc = proc
	e.state.PID = proc.PID()
	e.state.StartedAt = s.now()
	e.state.ExitCode = nil
	s.transition(e, domain.SubsystemRunning, "launched")
	s.logger.Info("Subsystem started", "subsystem", e.spec.Name, "pid", e.state.PID)
}

// transition applies a status change, refusing ones the state machine
// does not allow. Callers hold s.mu.
func (s *Supervisor) transition(e *entry, to domain.SubsystemStatus, reason string) {
	from := e.state.Status
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		s.logger.Warn("Ignoring subsystem transition",
			"subsystem", e.spec.Name,
			"error", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to),
		)
		return
	}
	e.state.Status = to

	level := slog.LevelInfo
	if to == domain.SubsystemFailed {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "Subsystem status changed",
		"subsystem", e.spec.Name,
		"from", from,
		"to", to,
		"reason", reason,
	)

	up := 0.0
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if Alive(to) {
		up = 1
		serving = healthpb.HealthCheckResponse_SERVING
	}
	metrics.SubsystemUp.WithLabelValues(e.spec.Name).Set(up)
	s.health.SetServingStatus(e.spec.Name, serving)
}

// Restart terminates a subsystem and launches it again from its original
// spec. It is not limited by the automatic restart budget.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubsystemNotFound, name)
	}
	if e.state.Status == domain.SubsystemRestarting {
		s.mu.Unlock()
		return fmt.Errorf("subsystem %s is already restarting", name)
	}
	s.transition(e, domain.SubsystemRestarting, "restart requested")
	proc := e.proc
	e.proc = nil
	s.mu.Unlock()

	if proc != nil {
		s.terminate(ctx, e.spec.Name, proc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	e.state.Restarts++
	e.gaveUp = false
	e.nextRestartAt = time.Time{}
	e.backoff = s.newBackoff()
	metrics.SubsystemRestarts.WithLabelValues(name).Inc()

	s.transition(e, domain.SubsystemStarting, "restart requested")
	s.launch(ctx, e)
	if e.state.Status != domain.SubsystemRunning {
		return fmt.Errorf("failed to restart %s", name)
	}
	return nil
}

// terminate sends SIGTERM, waits up to StopTimeout, then kills.
func (s *Supervisor) terminate(ctx context.Context, name string, proc Process) {
	select {
	case <-proc.Done():
		return
	default:
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug("SIGTERM failed", "subsystem", name, "error", err)
	}

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Warn("Force killing subsystem", "subsystem", name)
	if err := proc.Kill(); err != nil {
		s.logger.Debug("Kill failed", "subsystem", name, "error", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(time.Second):
	}
}

// Stop terminates every subsystem. It is safe to call more than once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	type target struct {
		name string
		proc Process
	}
	var targets []target
	for _, name := range s.order {
		e := s.entries[name]
		if e.proc != nil {
			targets = append(targets, target{name, e.proc})
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.terminate(ctx, t.name, t.proc)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		e := s.entries[name]
		e.proc = nil
		s.transition(e, domain.SubsystemStopped, "supervisor stopped")
	}
	s.health.Shutdown()
	s.logger.Info("All subsystems stopped", "count", len(s.order))
	return nil
}

// Snapshot returns a copy of every subsystem's state in configuration order.
func (s *Supervisor) Snapshot() []domain.SubsystemState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SubsystemState, 0, len(s.order))
	for _, name := range s.order {
		st := s.entries[name].state
		if st.ExitCode != nil {
			code := *st.ExitCode
			st.ExitCode = &code
		}
		out = append(out, st)
	}
	return out
}

// Statuses returns name -> status for checkpointing.
func (s *Supervisor) Statuses() map[string]domain.SubsystemStatus {
	snap := s.Snapshot()
	out := make(map[string]domain.SubsystemStatus, len(snap))
	for _, st := range snap {
		out[st.Name] = st.Status
	}
	return out
}
