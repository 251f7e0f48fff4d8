package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/autocycle/internal/infra/exec"
)

// AgentDriver sends instructions to an external agent and reads back what
// it printed. Whether the agent acts on the instruction is not checked.
type AgentDriver interface {
	SendInput(ctx context.Context, text string) error
	ReadRecentOutput(ctx context.Context) (string, error)
}

// CommandAgent drives an agent through two shell commands: one receiving
// the instruction on stdin, one printing recent output.
type CommandAgent struct {
	executor    exec.Executor
	dir         string
	sendCommand string
	readCommand string
}

// NewCommandAgent creates a command-backed agent driver.
func NewCommandAgent(executor exec.Executor, dir, sendCommand, readCommand string) *CommandAgent {
	return &CommandAgent{
		executor:    executor,
		dir:         dir,
		sendCommand: sendCommand,
		readCommand: readCommand,
	}
}

// SendInput pipes text into the send command.
func (a *CommandAgent) SendInput(ctx context.Context, text string) error {
	name, args := exec.Shell(a.sendCommand)
	_, stderr, err := a.executor.RunInput(ctx, a.dir, text, name, args...)
	if err != nil {
		return fmt.Errorf("send command failed: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// ReadRecentOutput returns the read command's stdout, or "" when no read
// command is configured.
func (a *CommandAgent) ReadRecentOutput(ctx context.Context) (string, error) {
	if a.readCommand == "" {
		return "", nil
	}
	name, args := exec.Shell(a.readCommand)
	stdout, _, err := a.executor.Run(ctx, a.dir, name, args...)
	if err != nil {
		return "", fmt.Errorf("read command failed: %w", err)
	}
	return string(stdout), nil
}
