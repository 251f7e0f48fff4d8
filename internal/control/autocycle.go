package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/autocycle/internal/core/checkpoint"
	"github.com/vietddude/autocycle/internal/core/config"
	"github.com/vietddude/autocycle/internal/cycle/recovery"
	"github.com/vietddude/autocycle/internal/cycle/runner"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
	"github.com/vietddude/autocycle/internal/cycle/status"
	"github.com/vietddude/autocycle/internal/cycle/supervisor"
	"github.com/vietddude/autocycle/internal/infra/exec"
	"github.com/vietddude/autocycle/internal/infra/logging"
)

// Autocycle owns every component of a run and their lifecycle.
type Autocycle struct {
	cfg         *config.AppConfig
	loggers     *logging.Loggers
	ownsLoggers bool
	backend     *Backend
	checkpoints *checkpoint.Manager
	pruner      *checkpoint.Pruner
	engine      *recovery.Engine
	supervisor  *supervisor.Supervisor
	runner      *runner.Runner
	monitor     *status.Monitor
	httpServer  *status.Server
	grpcServer  *grpc.Server
	scheduler   schedule.Scheduler
	log         *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	stopErr  error
	stopOnce sync.Once
}

// NewAutocycle creates an Autocycle instance with all dependencies initialized.
func NewAutocycle(ctx context.Context, cfg *config.AppConfig, opts Options) (*Autocycle, error) {
	if opts.Work == nil && cfg.Work.Command == "" {
		return nil, errors.New("work.command is required")
	}

	// 1. Logging
	loggers, owns := opts.Loggers, false
	if loggers == nil {
		var err error
		loggers, err = logging.Setup(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
		owns = true
	}
	fail := func(err error) (*Autocycle, error) {
		if owns {
			_ = loggers.Close()
		}
		return nil, err
	}

	engineCfg, err := engineConfig(cfg.Recovery)
	if err != nil {
		return fail(err)
	}
	patterns, err := parseKinds("patterns", cfg.Recovery.Patterns)
	if err != nil {
		return fail(err)
	}
	classifier, err := recovery.NewClassifier(patterns)
	if err != nil {
		return fail(fmt.Errorf("invalid recovery.patterns: %w", err))
	}

	// 2. Checkpoint storage
	backend, err := OpenCheckpoints(ctx, cfg, loggers.Controller)
	if err != nil {
		return fail(err)
	}
	loggers.Controller.Info("Checkpoint storage ready", "backend", cfg.Checkpoint.Backend)
	checkpoints := checkpoint.NewManager(backend.Repo, loggers.Runner)
	pruner := checkpoint.NewPruner(backend.Repo, cfg.Checkpoint.KeepLast, cfg.Checkpoint.PruneInterval, opts.Scheduler, loggers.Controller)

	// 3. Supervisor
	launcher := opts.Launcher
	if launcher == nil {
		launcher = &supervisor.ExecLauncher{OutputDir: cfg.Logging.Dir}
	}
	sup, err := supervisor.New(
		supervisor.Config{
			PollInterval:   cfg.Supervisor.PollInterval,
			StopTimeout:    cfg.Supervisor.StopTimeout,
			MaxRestarts:    cfg.Supervisor.MaxRestarts,
			RestartBackoff: cfg.Supervisor.RestartBackoff,
			MaxBackoff:     cfg.Supervisor.MaxBackoff,
		},
		cfg.Subsystems,
		launcher,
		opts.Scheduler,
		loggers.Supervisor,
	)
	if err != nil {
		_ = backend.Close()
		return fail(err)
	}

	// 4. Recovery
	executor := opts.Executor
	if executor == nil {
		executor = exec.NewRealExecutor()
	}
	strategies := recovery.DefaultStrategies(strategyConfig(cfg), executor, sup, loggers.Recovery)
	engine := recovery.NewEngine(engineCfg, strategies, loggers.Recovery)

	// 5. Work and runner
	work := opts.Work
	if work == nil {
		var agent runner.AgentDriver
		if cfg.Agent.SendCommand != "" {
			agent = runner.NewCommandAgent(executor, cfg.Work.Dir, cfg.Agent.SendCommand, cfg.Agent.ReadCommand)
		}
		work = runner.NewCommandWork(runner.CommandWorkConfig{
			Command:     cfg.Work.Command,
			Dir:         cfg.Work.Dir,
			Instruction: cfg.Work.Instruction,
			Settle:      cfg.Agent.Settle,
		}, executor, agent, loggers.Runner)
	}
	run := runner.New(
		runner.Config{
			Timeout:         cfg.Cycles.Timeout,
			Pause:           cfg.Cycles.Pause,
			RetryInPlace:    cfg.Cycles.RetryInPlace,
			HaltOnExhausted: cfg.Cycles.HaltOnExhausted,
		},
		work,
		classifier,
		engine,
		checkpoints,
		sup,
		loggers.Runner,
	)

	// 6. Status monitor and servers
	host := opts.Host
	if host == nil {
		host = status.NewProcSampler()
	}
	monitor := status.NewMonitor(
		status.Config{Interval: cfg.Monitor.Interval, DiskPath: cfg.Monitor.DiskPath},
		sup,
		checkpoints,
		engine,
		host,
		opts.Scheduler,
		loggers.Monitor,
	)

	var httpServer *status.Server
	if cfg.Server.Port > 0 {
		httpServer = status.NewServer(monitor, cfg.Server.Port)
	}

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, sup.HealthServer())
	}

	return &Autocycle{
		cfg:         cfg,
		loggers:     loggers,
		ownsLoggers: owns,
		backend:     backend,
		checkpoints: checkpoints,
		pruner:      pruner,
		engine:      engine,
		supervisor:  sup,
		runner:      run,
		monitor:     monitor,
		httpServer:  httpServer,
		grpcServer:  grpcServer,
		scheduler:   opts.Scheduler,
		log:         loggers.Controller,
	}, nil
}

// Checkpoints exposes the checkpoint manager.
func (a *Autocycle) Checkpoints() *checkpoint.Manager {
	return a.checkpoints
}

// Supervisor exposes the subsystem supervisor.
func (a *Autocycle) Supervisor() *supervisor.Supervisor {
	return a.supervisor
}

// Monitor exposes the status monitor.
func (a *Autocycle) Monitor() *status.Monitor {
	return a.monitor
}

// Start launches subsystems and every background loop. It returns once
// they are running.
func (a *Autocycle) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return errors.New("autocycle already stopped")
	}
	if a.started {
		return nil
	}

	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
		a.goBackground(func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.log.Error("gRPC health server failed", "error", err)
			}
		})
		a.log.Info("gRPC health service listening", "port", a.cfg.Server.GRPCPort)
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if err := a.supervisor.Start(bgCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start subsystems: %w", err)
	}

	a.goBackground(func() { a.supervisor.Run(bgCtx) })
	a.goBackground(func() { a.monitor.Run(bgCtx) })
	a.goBackground(func() { a.engine.StartSummaryLoop(bgCtx, a.scheduler, a.cfg.Recovery.SummaryInterval) })
	a.goBackground(func() { a.pruner.Start(bgCtx) })

	if a.backend.DB != nil {
		a.backend.DB.StartMetricsCollector(bgCtx)
	}

	if a.httpServer != nil {
		a.goBackground(func() {
			if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Status server failed", "error", err)
			}
		})
		a.log.Info("Status server listening", "port", a.cfg.Server.Port)
	}

	a.started = true
	return nil
}

func (a *Autocycle) goBackground(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Run executes cycles up to target, resuming after the latest checkpoint
// when resume is set. ctx cancellation interrupts the run.
func (a *Autocycle) Run(ctx context.Context, target int, resume bool) (runner.Summary, error) {
	start, err := checkpoint.StartCycle(ctx, a.checkpoints, resume)
	if err != nil {
		return runner.Summary{Target: target}, err
	}
	if resume {
		a.log.Info("Resuming from checkpoint", "start_cycle", start)
	}

	sum, err := a.runner.Run(ctx, target, start)
	switch {
	case err == nil:
		a.log.Info("Run complete",
			"run_id", sum.RunID,
			"cycles", sum.Completed(),
			"succeeded", sum.Succeeded,
			"failed", sum.Failed,
		)
	case errors.Is(err, runner.ErrInterrupted):
		a.log.Warn("Run interrupted", "last_cycle", sum.LastCycle)
	default:
		a.log.Error("Run stopped", "last_cycle", sum.LastCycle, "error", err)
	}
	if m := a.checkpoints.GetMetrics(); m.CyclesPerHour > 0 {
		a.log.Info("Cycle rate",
			"cycles_per_hour", m.CyclesPerHour,
			"avg_duration", m.AverageDuration,
			"success_rate", m.SuccessRate,
		)
	}
	return sum, err
}

// Stop stops subsystems, background loops and servers, persists the error
// history and closes storage. It is safe to call more than once.
func (a *Autocycle) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		cancel := a.cancel
		a.mu.Unlock()

		a.log.Info("Stopping autocycle...")
		var errs []error

		if err := a.supervisor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop subsystems: %w", err))
		}
		if cancel != nil {
			cancel()
		}

		if a.httpServer != nil {
			if err := a.httpServer.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop status server: %w", err))
			}
		}
		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}
		a.wg.Wait()

		if path := a.cfg.Recovery.HistoryFile; path != "" {
			if err := a.engine.SaveHistory(path); err != nil {
				errs = append(errs, err)
			} else {
				a.log.Info("Error history saved", "path", path, "summary", a.engine.Summary().String())
			}
		}

		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close checkpoint storage: %w", err))
		}

		a.stopErr = errors.Join(errs...)
		if a.stopErr != nil {
			a.log.Error("Errors during shutdown", "error", a.stopErr)
		} else {
			a.log.Info("Autocycle stopped")
		}

		if a.ownsLoggers {
			_ = a.loggers.Close()
		}
	})
	return a.stopErr
}
