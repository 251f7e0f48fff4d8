// Package schedule provides the tick source used by the supervisor poll
// loop and the status monitor, so tests can drive them by hand.
package schedule

import (
	"slices"
	"sync"
	"time"
)

// Scheduler produces periodic ticks.
type Scheduler interface {
	// Every returns a channel ticking every d and a func that stops it.
	Every(d time.Duration) (<-chan time.Time, func())
}

// Ticker is the production scheduler backed by time.Ticker.
type Ticker struct{}

// Every starts a time.Ticker.
func (Ticker) Every(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Manual is a Scheduler whose ticks are fired explicitly with Tick.
type Manual struct {
	mu    sync.Mutex
	loops []*manualLoop
	ready chan struct{}
	once  sync.Once
}

type manualLoop struct {
	ch      chan time.Time
	stopped chan struct{}
}

// NewManual creates a manual scheduler.
func NewManual() *Manual {
	return &Manual{ready: make(chan struct{})}
}

// Every registers a new tick channel. The returned stop func unregisters it.
func (m *Manual) Every(d time.Duration) (<-chan time.Time, func()) {
	l := &manualLoop{ch: make(chan time.Time), stopped: make(chan struct{})}
	m.mu.Lock()
	m.loops = append(m.loops, l)
	m.mu.Unlock()
	m.once.Do(func() { close(m.ready) })

	var stopOnce sync.Once
	return l.ch, func() {
		stopOnce.Do(func() {
			m.mu.Lock()
			m.loops = slices.DeleteFunc(m.loops, func(x *manualLoop) bool { return x == l })
			m.mu.Unlock()
			close(l.stopped)
		})
	}
}

// Ready is closed once the first loop has registered.
func (m *Manual) Ready() <-chan struct{} {
	return m.ready
}

// Tick delivers one tick to every registered loop, blocking until each
// has received it or stopped.
func (m *Manual) Tick() {
	m.mu.Lock()
	loops := slices.Clone(m.loops)
	m.mu.Unlock()

	now := time.Now()
	for _, l := range loops {
		select {
		case l.ch <- now:
		case <-l.stopped:
		}
	}
}

// Registered reports how many loops are currently registered.
func (m *Manual) Registered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}
