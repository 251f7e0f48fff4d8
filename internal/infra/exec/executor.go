// Package exec runs external commands behind an interface so recovery
// strategies, cycle work and the agent driver can be tested with canned
// responses.
package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// WaitDelay bounds how long Run waits for output pipes to close after the
// command's process group was killed.
const WaitDelay = 5 * time.Second

// Executor abstracts command execution.
type Executor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// RunInput is Run with input fed to the command's stdin.
	RunInput(ctx context.Context, dir string, input string, name string, args ...string) (stdout, stderr []byte, err error)
}

// Shell returns the argv that runs line through sh -c.
func Shell(line string) (string, []string) {
	return "sh", []string{"-c", line}
}

// ExitCode extracts the process exit code from err. ok is false when err
// did not come from a process that ran to completion.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.run(ctx, dir, nil, name, args...)
}

// RunInput executes a command with input on stdin.
func (e *RealExecutor) RunInput(ctx context.Context, dir string, input string, name string, args ...string) ([]byte, []byte, error) {
	return e.run(ctx, dir, strings.NewReader(input), name, args...)
}

func (e *RealExecutor) run(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin

	// Cancellation kills the whole group: sh -c leaves the real build as a child.
	SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		return SignalGroup(cmd.Process, os.Kill)
	}
	cmd.WaitDelay = WaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher reports whether a command matches a rule.
type CommandMatcher func(dir, name string, args []string) bool

type mockRule struct {
	match    CommandMatcher
	response MockResponse
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir   string
	Name  string
	Args  []string
	Input string
}

// Line returns the call as a single space-joined string.
func (c MockCall) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockExecutor returns pre-recorded responses for commands, matched in
// order of registration. Unmatched commands succeed with empty output.
type MockExecutor struct {
	mu    sync.RWMutex
	rules []mockRule
	calls []MockCall
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, mockRule{match: match, response: response})
}

// AddContains adds a rule matching any command whose joined argv contains substr.
func (e *MockExecutor) AddContains(substr string, response MockResponse) {
	e.AddRule(func(dir, name string, args []string) bool {
		return strings.Contains(strings.Join(append([]string{name}, args...), " "), substr)
	}, response)
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	calls := make([]MockCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.RunInput(ctx, dir, "", name, args...)
}

// RunInput executes a mocked command, recording its input.
func (e *MockExecutor) RunInput(ctx context.Context, dir string, input string, name string, args ...string) ([]byte, []byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Dir: dir, Name: name, Args: args, Input: input})
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rule := range e.rules {
		if rule.match(dir, name, args) {
			return rule.response.Stdout, rule.response.Stderr, rule.response.Err
		}
	}
	return nil, nil, nil
}

// Ensure implementations satisfy the interface.
var _ Executor = (*RealExecutor)(nil)
var _ Executor = (*MockExecutor)(nil)
