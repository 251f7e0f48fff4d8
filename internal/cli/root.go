package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vietddude/autocycle/internal/control"
	"github.com/vietddude/autocycle/internal/core/config"
	"github.com/vietddude/autocycle/internal/infra/logging"
)

var (
	cfgPath  string
	isDebug  bool
	cycles   int
	resume   bool
	testMode bool
)

var rootCmd = &cobra.Command{
	Use:   "autocycle",
	Short: "Automated build/validate cycle runner",
	Long: `Autocycle drives a repeating build/validate cycle: it supervises helper
processes, classifies failures, applies recovery strategies and checkpoints
every cycle so an interrupted run can resume.`,
	Run: runAutocycle,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().IntVar(&cycles, "cycles", 50, "number of cycles to run")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "resume after the latest checkpoint")
	rootCmd.Flags().BoolVar(&testMode, "test", false, "run the short test cycle count")
}

// loadConfig loads .env and the config file, initializing console logging
// so failures are reported.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.InitConsole(slog.LevelInfo)
		slog.Error("Failed to load config", "error", err, "path", cfgPath)
		return nil, err
	}
	if isDebug {
		cfg.Logging.Level = "debug"
	}
	logging.InitConsole(logging.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}

// targetCycles resolves the cycle count from flags and config.
func targetCycles(cmd *cobra.Command, cfg *config.AppConfig) int {
	switch {
	case testMode:
		return cfg.Cycles.TestCycles
	case cmd.Flags().Changed("cycles"):
		return cycles
	default:
		return cfg.Cycles.Target
	}
}

func runAutocycle(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}

	loggers, err := logging.Setup(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Dir)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = loggers.Close()
	}()

	if code := run(cmd, cfg, loggers); code != 0 {
		_ = loggers.Close()
		os.Exit(code)
	}
}

// run executes one full session and returns the process exit code.
func run(cmd *cobra.Command, cfg *config.AppConfig, loggers *logging.Loggers) int {
	log := loggers.Controller
	target := targetCycles(cmd, cfg)
	if target < 1 {
		log.Error("Cycle count must be positive", "cycles", target)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewAutocycle(ctx, cfg, control.Options{Loggers: loggers})
	if err != nil {
		log.Error("Failed to initialize autocycle", "error", err)
		return 1
	}

	// Handle OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	exitCode := 0
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start autocycle", "error", err)
		exitCode = 1
	} else {
		log.Info("Autocycle started", "config", cfgPath, "cycles", target, "resume", resume, "test", testMode)
		if _, err := app.Run(ctx, target, resume); err != nil {
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		exitCode = 1
	}
	return exitCode
}
