// Package logging sets up the console stream and the per-component log files.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
)

// FileTimeFormat is the bracketed timestamp written to log files.
const FileTimeFormat = "[2006-01-02 15:04:05]"

// Component log file names.
const (
	ControllerFile = "controller.log"
	SupervisorFile = "supervisor.log"
	RunnerFile     = "runner.log"
	MonitorFile    = "monitor.log"
	RecoveryFile   = "error_recovery.log"
)

// Loggers holds one logger per component. Each writes to the console and
// to its own file; Recovery writes to the shared recovery log.
type Loggers struct {
	Controller *slog.Logger
	Supervisor *slog.Logger
	Runner     *slog.Logger
	Monitor    *slog.Logger
	Recovery   *slog.Logger

	files []*os.File
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitConsole installs the colored console logger as the slog default.
func InitConsole(level slog.Level) {
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}

// Setup initializes the console logger and opens the component files under
// dir. An empty dir keeps everything on the console.
func Setup(level slog.Level, dir string) (*Loggers, error) {
	InitConsole(level)
	console := slog.Default().Handler()

	l := &Loggers{}
	if dir == "" {
		base := slog.New(console)
		l.Controller, l.Supervisor, l.Runner, l.Monitor, l.Recovery = base, base, base, base, base
		return l, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	open := func(name string) (*slog.Logger, error) {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		l.files = append(l.files, f)
		return slog.New(Fanout(console, NewFileHandler(f, level))), nil
	}

	var err error
	if l.Controller, err = open(ControllerFile); err != nil {
		l.Close()
		return nil, err
	}
	if l.Supervisor, err = open(SupervisorFile); err != nil {
		l.Close()
		return nil, err
	}
	if l.Runner, err = open(RunnerFile); err != nil {
		l.Close()
		return nil, err
	}
	if l.Monitor, err = open(MonitorFile); err != nil {
		l.Close()
		return nil, err
	}
	if l.Recovery, err = open(RecoveryFile); err != nil {
		l.Close()
		return nil, err
	}

	slog.SetDefault(l.Controller)
	return l, nil
}

// Close closes all open log files.
func (l *Loggers) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// NewFileHandler returns an uncolored tint handler producing
// "[2006-01-02 15:04:05] [LEVEL] message key=value" lines.
func NewFileHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: FileTimeFormat,
		NoColor:    true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, "["+lvl.String()+"]")
				}
			}
			return a
		},
	})
}

// fanout sends every record to all handlers that accept its level.
type fanout struct {
	handlers []slog.Handler
}

// Fanout combines handlers into one.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: next}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanout{handlers: next}
}
