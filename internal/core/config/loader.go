package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks values defaults cannot fix.
func (c *AppConfig) Validate() error {
	seen := make(map[string]bool, len(c.Subsystems))
	for i, s := range c.Subsystems {
		if s.Name == "" {
			return fmt.Errorf("subsystem %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("subsystem %s: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if len(s.Command) == 0 {
			return fmt.Errorf("subsystem %s: command is required", s.Name)
		}
	}

	switch c.Checkpoint.Backend {
	case "file", "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("checkpoint backend postgres requires database.url")
	}
	if c.Checkpoint.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("checkpoint backend redis requires redis.url")
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = filepath.Join(cfg.ProjectRoot, "logs")
	}

	if cfg.Cycles.Target == 0 {
		cfg.Cycles.Target = 50
	}
	if cfg.Cycles.TestCycles == 0 {
		cfg.Cycles.TestCycles = 5
	}
	if cfg.Cycles.Timeout == 0 {
		cfg.Cycles.Timeout = 5 * time.Minute
	}
	if cfg.Cycles.Pause == 0 {
		cfg.Cycles.Pause = 2 * time.Second
	}

	if cfg.Work.Dir == "" {
		cfg.Work.Dir = cfg.ProjectRoot
	}
	if cfg.Work.Instruction == "" {
		cfg.Work.Instruction = "Cycle {cycle}: continue development and fix any build errors."
	}
	if cfg.Agent.Settle == 0 {
		cfg.Agent.Settle = 5 * time.Second
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = "file"
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = filepath.Join(cfg.ProjectRoot, "checkpoints")
	}
	if cfg.Checkpoint.PruneInterval == 0 {
		cfg.Checkpoint.PruneInterval = 10 * time.Minute
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = "autocycle"
	}

	if cfg.Supervisor.PollInterval == 0 {
		cfg.Supervisor.PollInterval = 5 * time.Second
	}
	if cfg.Supervisor.StopTimeout == 0 {
		cfg.Supervisor.StopTimeout = 10 * time.Second
	}
	// Negative max_restarts disables relaunching and is kept as is.
	if cfg.Supervisor.MaxRestarts == 0 {
		cfg.Supervisor.MaxRestarts = 3
	}
	if cfg.Supervisor.RestartBackoff == 0 {
		cfg.Supervisor.RestartBackoff = 2 * time.Second
	}
	if cfg.Supervisor.MaxBackoff == 0 {
		cfg.Supervisor.MaxBackoff = time.Minute
	}
	for i := range cfg.Subsystems {
		if cfg.Subsystems[i].Dir == "" {
			cfg.Subsystems[i].Dir = cfg.ProjectRoot
		}
	}

	if cfg.Recovery.Window == 0 {
		cfg.Recovery.Window = 10
	}
	if cfg.Recovery.RetryDelay == 0 {
		cfg.Recovery.RetryDelay = 5 * time.Second
	}
	if cfg.Recovery.NetworkRetryDelay == 0 {
		cfg.Recovery.NetworkRetryDelay = 30 * time.Second
	}
	if cfg.Recovery.CommandTimeout == 0 {
		cfg.Recovery.CommandTimeout = 2 * time.Minute
	}
	if cfg.Recovery.HistoryFile == "" {
		cfg.Recovery.HistoryFile = filepath.Join(cfg.Logging.Dir, "error_history.json")
	}
	if cfg.Recovery.SummaryInterval == 0 {
		cfg.Recovery.SummaryInterval = 5 * time.Minute
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 5 * time.Second
	}
	if cfg.Monitor.DiskPath == "" {
		cfg.Monitor.DiskPath = cfg.ProjectRoot
	}
}
