package control

import (
	"fmt"

	"github.com/vietddude/autocycle/internal/core/config"
	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/recovery"
	"github.com/vietddude/autocycle/internal/cycle/runner"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
	"github.com/vietddude/autocycle/internal/cycle/status"
	"github.com/vietddude/autocycle/internal/cycle/supervisor"
	"github.com/vietddude/autocycle/internal/infra/exec"
	"github.com/vietddude/autocycle/internal/infra/logging"
)

// Options replaces the production collaborators. Zero values select the
// real implementations.
type Options struct {
	Loggers   *logging.Loggers    // nil: set up from config, closed on Stop
	Executor  exec.Executor       // nil: os/exec
	Launcher  supervisor.Launcher // nil: os/exec, output under the log dir
	Work      runner.Work         // nil: CommandWork from config
	Host      status.HostSampler  // nil: /proc and statfs
	Scheduler schedule.Scheduler  // nil: time.Ticker
}

// parseKinds converts a kind-keyed config map, rejecting unknown kinds.
func parseKinds[V any](section string, in map[string]V) (map[domain.ErrorKind]V, error) {
	out := make(map[domain.ErrorKind]V, len(in))
	for k, v := range in {
		kind := domain.ErrorKind(k)
		if !kind.Valid() {
			return nil, fmt.Errorf("recovery.%s: unknown error kind %q", section, k)
		}
		out[kind] = v
	}
	return out, nil
}

// engineConfig builds the recovery engine settings from config.
func engineConfig(cfg config.RecoveryConfig) (recovery.Config, error) {
	budgets, err := parseKinds("budgets", cfg.Budgets)
	if err != nil {
		return recovery.Config{}, err
	}
	for kind, n := range budgets {
		if n < 0 {
			return recovery.Config{}, fmt.Errorf("recovery.budgets: %s must not be negative", kind)
		}
	}

	names, err := parseKinds("strategies", cfg.Strategies)
	if err != nil {
		return recovery.Config{}, err
	}
	plans := make(map[domain.ErrorKind][]domain.StrategyKind, len(names))
	for kind, list := range names {
		plan := make([]domain.StrategyKind, 0, len(list))
		for _, name := range list {
			s := domain.StrategyKind(name)
			if !s.Valid() {
				return recovery.Config{}, fmt.Errorf("recovery.strategies: %s: unknown strategy %q", kind, name)
			}
			plan = append(plan, s)
		}
		plans[kind] = plan
	}

	return recovery.Config{Window: cfg.Window, Budgets: budgets, Plans: plans}, nil
}

// strategyConfig maps config onto what the built-in strategies act on.
func strategyConfig(cfg *config.AppConfig) recovery.StrategyConfig {
	return recovery.StrategyConfig{
		ProjectRoot:       cfg.ProjectRoot,
		CacheDirs:         cfg.Recovery.CacheDirs,
		ResetCommands:     cfg.Recovery.ResetCommands,
		FallbackCommands:  cfg.Recovery.FallbackCommands,
		RestartSubsystems: cfg.Recovery.RestartSubsystems,
		RetryDelay:        cfg.Recovery.RetryDelay,
		NetworkRetryDelay: cfg.Recovery.NetworkRetryDelay,
		CommandTimeout:    cfg.Recovery.CommandTimeout,
	}
}
