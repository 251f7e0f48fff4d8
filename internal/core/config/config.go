package config

import (
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
	redisclient "github.com/vietddude/autocycle/internal/infra/redis"
	"github.com/vietddude/autocycle/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	ProjectRoot string             `yaml:"project_root"`
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Cycles      CycleConfig        `yaml:"cycles"`
	Work        WorkConfig         `yaml:"work"`
	Agent       AgentConfig        `yaml:"agent"`
	Checkpoint  CheckpointConfig   `yaml:"checkpoint"`
	Database    postgres.Config    `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
	Supervisor  SupervisorConfig   `yaml:"supervisor"`
	Subsystems  []domain.Subsystem `yaml:"subsystems"`
	Recovery    RecoveryConfig     `yaml:"recovery"`
	Monitor     MonitorConfig      `yaml:"monitor"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`      // 0 disables the status server
	GRPCPort int `yaml:"grpc_port"` // 0 disables the health service
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // per-component log files; empty = console only
}

// CycleConfig controls the cycle loop.
type CycleConfig struct {
	Target          int           `yaml:"target"`
	TestCycles      int           `yaml:"test_cycles"`
	Timeout         time.Duration `yaml:"timeout"`
	Pause           time.Duration `yaml:"pause"`
	RetryInPlace    bool          `yaml:"retry_in_place"`
	HaltOnExhausted bool          `yaml:"halt_on_exhausted"`
}

// WorkConfig describes the unit of work run each cycle.
type WorkConfig struct {
	Command     string `yaml:"command"` // shell line
	Dir         string `yaml:"dir"`
	Instruction string `yaml:"instruction"` // sent to the agent; {cycle} is replaced
}

// AgentConfig configures the command-backed agent driver. Empty SendCommand disables it.
type AgentConfig struct {
	SendCommand string        `yaml:"send_command"` // receives the instruction on stdin
	ReadCommand string        `yaml:"read_command"` // prints recent agent output
	Settle      time.Duration `yaml:"settle"`       // wait after sending before the build
}

// CheckpointConfig selects and tunes the checkpoint backend.
type CheckpointConfig struct {
	Backend       string        `yaml:"backend"` // file, memory, postgres, redis
	Dir           string        `yaml:"dir"`
	KeepLast      int           `yaml:"keep_last"` // 0 = keep all
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// SupervisorConfig tunes subsystem supervision.
type SupervisorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	MaxRestarts    int           `yaml:"max_restarts"`
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RecoveryConfig tunes error classification and recovery strategies.
type RecoveryConfig struct {
	Window            int                 `yaml:"window"`
	Budgets           map[string]int      `yaml:"budgets"`    // error kind -> attempts
	Patterns          map[string][]string `yaml:"patterns"`   // extra regexps per kind
	Strategies        map[string][]string `yaml:"strategies"` // override order per kind
	CacheDirs         []string            `yaml:"cache_dirs"`
	ResetCommands     []string            `yaml:"reset_commands"`
	FallbackCommands  []string            `yaml:"fallback_commands"`
	RestartSubsystems []string            `yaml:"restart_subsystems"`
	RetryDelay        time.Duration       `yaml:"retry_delay"`
	NetworkRetryDelay time.Duration       `yaml:"network_retry_delay"`
	CommandTimeout    time.Duration       `yaml:"command_timeout"`
	HistoryFile       string              `yaml:"history_file"`
	SummaryInterval   time.Duration       `yaml:"summary_interval"`
}

// MonitorConfig tunes the status monitor.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	DiskPath string        `yaml:"disk_path"`
}
