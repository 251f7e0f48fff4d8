package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/metrics"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

// ActionMaxRetriesExceeded is the sole action reported when a kind's budget is spent.
const ActionMaxRetriesExceeded = "max retries exceeded"

// DefaultWindow is how many error records are kept for budget accounting.
const DefaultWindow = 10

// DefaultBudgets caps recovery attempts per kind within the window.
var DefaultBudgets = map[domain.ErrorKind]int{
	domain.ErrorKindBuildFailure: 3,
	domain.ErrorKindDependency:   2,
	domain.ErrorKindPermission:   1,
	domain.ErrorKindNetwork:      5,
	domain.ErrorKindTimeout:      2,
	domain.ErrorKindExternalTool: 3,
	domain.ErrorKindEnvironment:  2,
	domain.ErrorKindUnknown:      1,
}

// DefaultPlans lists the strategies tried for each kind, in order.
var DefaultPlans = map[domain.ErrorKind][]domain.StrategyKind{
	domain.ErrorKindBuildFailure: {domain.StrategyClearCache, domain.StrategyResetEnvironment, domain.StrategyRetry},
	domain.ErrorKindDependency:   {domain.StrategyClearCache, domain.StrategyResetEnvironment, domain.StrategyRetry},
	domain.ErrorKindPermission:   {domain.StrategyResetEnvironment, domain.StrategyManualIntervention},
	domain.ErrorKindNetwork:      {domain.StrategyRetry, domain.StrategyFallbackMethod},
	domain.ErrorKindTimeout:      {domain.StrategyRetry, domain.StrategyRestartSubsystem},
	domain.ErrorKindExternalTool: {domain.StrategyResetEnvironment, domain.StrategyRestartSubsystem},
	domain.ErrorKindEnvironment:  {domain.StrategyResetEnvironment, domain.StrategyManualIntervention},
	domain.ErrorKindUnknown:      {domain.StrategyRetry, domain.StrategyManualIntervention},
}

// Outcome is the result of one recovery attempt.
type Outcome struct {
	Succeeded bool
	Actions   []string
	Exhausted bool
}

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	Window  int
	Budgets map[domain.ErrorKind]int
	Plans   map[domain.ErrorKind][]domain.StrategyKind
}

// Summary counts recent errors by kind.
type Summary struct {
	Total  int                      `json:"total"`
	ByKind map[domain.ErrorKind]int `json:"by_kind"`
}

// String renders the summary the way it is logged.
func (s Summary) String() string {
	if s.Total == 0 {
		return "No errors recorded"
	}
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "Recent errors (%d total):", s.Total)
	for _, k := range kinds {
		fmt.Fprintf(&b, " %s=%d", k, s.ByKind[domain.ErrorKind(k)])
	}
	return b.String()
}

// Engine applies typed recovery strategies under per-kind retry budgets.
type Engine struct {
	window     int
	budgets    map[domain.ErrorKind]int
	plans      map[domain.ErrorKind][]domain.StrategyKind
	strategies map[domain.StrategyKind]Strategy
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	history []domain.ErrorRecord
}

// NewEngine creates an engine running the given strategies.
func NewEngine(cfg Config, strategies map[domain.StrategyKind]Strategy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	budgets := maps.Clone(DefaultBudgets)
	maps.Copy(budgets, cfg.Budgets)
	plans := maps.Clone(DefaultPlans)
	maps.Copy(plans, cfg.Plans)

	return &Engine{
		window:     window,
		budgets:    budgets,
		plans:      plans,
		strategies: strategies,
		logger:     logger,
		now:        time.Now,
		history:    make([]domain.ErrorRecord, 0, window),
	}
}

// NewRecord builds an immutable error record stamped with a fresh ID.
func (e *Engine) NewRecord(
	kind domain.ErrorKind,
	message, stderr string,
	exitCode *int,
	context map[string]any,
) domain.ErrorRecord {
	return domain.ErrorRecord{
		ID:        uuid.New().String(),
		Timestamp: e.now(),
		Kind:      kind,
		Message:   message,
		Stderr:    stderr,
		ExitCode:  exitCode,
		Context:   context,
	}
}

// Recover records rec and runs the strategies planned for its kind until one
// succeeds. Once the kind has used its budget within the window, no strategy
// runs and the outcome is marked exhausted.
func (e *Engine) Recover(ctx context.Context, rec domain.ErrorRecord) Outcome {
	if !rec.Kind.Valid() {
		rec.Kind = domain.ErrorKindUnknown
	}
	metrics.ErrorsTotal.WithLabelValues(string(rec.Kind)).Inc()

	attempts := e.record(rec)
	budget := e.budgets[rec.Kind]

	e.logger.Info("Recovering from error",
		"kind", rec.Kind,
		"attempt", attempts+1,
		"budget", budget,
		"message", truncate(rec.Message, 200),
	)

	if attempts >= budget {
		metrics.RecoveryExhausted.WithLabelValues(string(rec.Kind)).Inc()
		e.logger.Error("Recovery budget exhausted", "kind", rec.Kind, "attempts", attempts)
		return Outcome{Actions: []string{ActionMaxRetriesExceeded}, Exhausted: true}
	}

	req := Request{Record: rec, Attempt: attempts}
	var actions []string
	for _, kind := range e.plans[rec.Kind] {
		if err := ctx.Err(); err != nil {
			actions = append(actions, fmt.Sprintf("%s: exception - %v", kind, err))
			break
		}

		res, err := e.apply(ctx, kind, req)
		if err != nil {
			metrics.RecoveryAttempts.WithLabelValues(string(rec.Kind), string(kind), "exception").Inc()
			actions = append(actions, fmt.Sprintf("%s: exception - %v", kind, err))
			e.logger.Error("Recovery strategy raised", "strategy", kind, "error", err)
			continue
		}

		actions = append(actions, fmt.Sprintf("%s: %s", kind, res.Description))
		if res.Success {
			metrics.RecoveryAttempts.WithLabelValues(string(rec.Kind), string(kind), "success").Inc()
			e.logger.Info("Recovery strategy succeeded", "strategy", kind, "detail", res.Description)
			return Outcome{Succeeded: true, Actions: actions}
		}
		metrics.RecoveryAttempts.WithLabelValues(string(rec.Kind), string(kind), "failure").Inc()
		e.logger.Warn("Recovery strategy failed", "strategy", kind, "detail", res.Description)
	}

	e.logger.Error("All recovery strategies failed", "kind", rec.Kind, "actions", len(actions))
	return Outcome{Actions: actions}
}

// record appends rec to the window and returns how many earlier records in
// the window share its kind.
func (e *Engine) record(rec domain.ErrorRecord) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, rec)
	if len(e.history) > e.window {
		e.history = e.history[len(e.history)-e.window:]
	}

	attempts := 0
	for _, prev := range e.history[:len(e.history)-1] {
		if prev.Kind == rec.Kind {
			attempts++
		}
	}
	return attempts
}

// apply runs a single strategy, converting a panic into an error.
func (e *Engine) apply(ctx context.Context, kind domain.StrategyKind, req Request) (res Result, err error) {
	strategy, ok := e.strategies[kind]
	if !ok {
		return Result{}, fmt.Errorf("no %s strategy configured", kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return strategy.Apply(ctx, req)
}

// History returns a copy of the records in the window, oldest first.
func (e *Engine) History() []domain.ErrorRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ErrorRecord, len(e.history))
	copy(out, e.history)
	return out
}

// Summary counts the records in the window by kind.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Summary{Total: len(e.history), ByKind: make(map[domain.ErrorKind]int)}
	for _, rec := range e.history {
		s.ByKind[rec.Kind]++
	}
	return s
}

// SaveHistory writes the window to path as indented JSON.
func (e *Engine) SaveHistory(path string) error {
	data, err := json.MarshalIndent(e.History(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write error history: %w", err)
	}
	return nil
}

// StartSummaryLoop logs the error summary on every tick of scheduler until
// ctx is done. A nil scheduler uses time.Ticker.
func (e *Engine) StartSummaryLoop(ctx context.Context, scheduler schedule.Scheduler, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if scheduler == nil {
		scheduler = schedule.Ticker{}
	}
	ticks, stop := scheduler.Every(interval)
	defer stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			line := e.Summary().String()
			if line != last {
				e.logger.Info(line)
				last = line
			}
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
