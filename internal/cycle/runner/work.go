package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/autocycle/internal/infra/exec"
)

// Work is the unit executed once per cycle.
type Work interface {
	Do(ctx context.Context, cycle int) error
}

// WorkFunc adapts a function to Work.
type WorkFunc func(ctx context.Context, cycle int) error

// Do calls f.
func (f WorkFunc) Do(ctx context.Context, cycle int) error {
	return f(ctx, cycle)
}

// WorkError describes a failed unit of work in classifiable terms.
type WorkError struct {
	Message     string
	Stderr      string
	ExitCode    *int
	AgentOutput string
}

func (e *WorkError) Error() string {
	return e.Message
}

// CommandWork prompts the agent (if any) and then runs the build command.
type CommandWork struct {
	executor    exec.Executor
	command     string
	dir         string
	agent       AgentDriver
	instruction string
	settle      time.Duration
	logger      *slog.Logger
}

// CommandWorkConfig configures CommandWork.
type CommandWorkConfig struct {
	Command     string
	Dir         string
	Instruction string        // {cycle} is replaced with the cycle number
	Settle      time.Duration // wait after prompting the agent
}

// NewCommandWork creates a CommandWork. agent may be nil.
func NewCommandWork(cfg CommandWorkConfig, executor exec.Executor, agent AgentDriver, logger *slog.Logger) *CommandWork {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandWork{
		executor:    executor,
		command:     cfg.Command,
		dir:         cfg.Dir,
		agent:       agent,
		instruction: cfg.Instruction,
		settle:      cfg.Settle,
		logger:      logger,
	}
}

// Do runs one cycle's work.
func (w *CommandWork) Do(ctx context.Context, cycle int) error {
	if w.agent != nil && w.instruction != "" {
		prompt := strings.ReplaceAll(w.instruction, "{cycle}", strconv.Itoa(cycle))
		if err := w.agent.SendInput(ctx, prompt); err != nil {
			return &WorkError{Message: fmt.Sprintf("agent input failed: %v", err)}
		}
		w.logger.Debug("Instruction sent to agent", "cycle", cycle)

		if w.settle > 0 {
			timer := time.NewTimer(w.settle)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if w.command == "" {
		return nil
	}

	name, args := exec.Shell(w.command)
	stdout, stderr, err := w.executor.Run(ctx, w.dir, name, args...)
	if err == nil {
		w.logger.Debug("Build command succeeded", "cycle", cycle, "output_bytes", len(stdout))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	werr := &WorkError{Stderr: strings.TrimSpace(string(stderr))}
	if code, ok := exec.ExitCode(err); ok {
		werr.ExitCode = &code
		werr.Message = fmt.Sprintf("Build failed exit code %d", code)
	} else {
		werr.Message = fmt.Sprintf("Build command failed: %v", err)
	}

	if w.agent != nil {
		out, readErr := w.agent.ReadRecentOutput(ctx)
		if readErr != nil {
			w.logger.Warn("Failed to read agent output", "error", readErr)
		}
		werr.AgentOutput = out
	}
	return werr
}
