package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/recovery"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSubsystems struct {
	states []domain.SubsystemState
}

func (f *fakeSubsystems) Snapshot() []domain.SubsystemState {
	out := make([]domain.SubsystemState, len(f.states))
	copy(out, f.states)
	return out
}

type fakeLoader struct {
	mu  sync.Mutex
	cp  *domain.Checkpoint
	err error
}

func (f *fakeLoader) set(cp *domain.Checkpoint) {
	f.mu.Lock()
	f.cp = cp
	f.mu.Unlock()
}

func (f *fakeLoader) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cp, f.err
}

type fakeErrors struct {
	sum recovery.Summary
}

func (f *fakeErrors) Summary() recovery.Summary { return f.sum }

type fakeHost struct {
	cpu, mem    float64
	disk        uint64
	cpuErr      error
	memErr      error
	diskErr     error
	lastDiskArg string
}

func (f *fakeHost) CPUPercent() (float64, error)    { return f.cpu, f.cpuErr }
func (f *fakeHost) MemoryPercent() (float64, error) { return f.mem, f.memErr }
func (f *fakeHost) DiskFree(path string) (uint64, error) {
	f.lastDiskArg = path
	return f.disk, f.diskErr
}

func newTestMonitor(subs *fakeSubsystems, loader *fakeLoader, errs *fakeErrors, host HostSampler) *Monitor {
	m := NewMonitor(Config{DiskPath: "/project"}, subs, loader, errs, host, schedule.NewManual(), nil)
	m.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

// =============================================================================
// Tests
// =============================================================================

func TestSample_Healthy(t *testing.T) {
	subs := &fakeSubsystems{states: []domain.SubsystemState{
		{Name: "metro", Status: domain.SubsystemRunning, Critical: true},
	}}
	loader := &fakeLoader{cp: &domain.Checkpoint{
		Cycle: 7,
		Data:  map[string]any{"success": true},
	}}
	errs := &fakeErrors{sum: recovery.Summary{
		Total:  2,
		ByKind: map[domain.ErrorKind]int{domain.ErrorKindBuildFailure: 2},
	}}
	host := &fakeHost{cpu: 12.5, mem: 40, disk: 1 << 30}

	m := newTestMonitor(subs, loader, errs, host)
	snap := m.Sample(context.Background())

	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", snap.Status)
	}
	if snap.LatestCheckpoint == nil || snap.LatestCheckpoint.Cycle != 7 || !snap.LatestCheckpoint.Success {
		t.Errorf("unexpected checkpoint info: %+v", snap.LatestCheckpoint)
	}
	if snap.ErrorTotal != 2 || snap.ErrorsByKind[domain.ErrorKindBuildFailure] != 2 {
		t.Errorf("unexpected error counts: %d %v", snap.ErrorTotal, snap.ErrorsByKind)
	}
	if !snap.Host.CPUPercent.OK() || snap.Host.CPUPercent.Value != 12.5 {
		t.Errorf("unexpected cpu reading: %+v", snap.Host.CPUPercent)
	}
	if snap.Host.DiskFreeBytes.Value != float64(1<<30) {
		t.Errorf("unexpected disk reading: %+v", snap.Host.DiskFreeBytes)
	}
	if host.lastDiskArg != "/project" {
		t.Errorf("expected disk path /project, got %q", host.lastDiskArg)
	}
}

func TestSample_UnavailableReadings(t *testing.T) {
	host := &fakeHost{
		cpuErr:  errors.New("no /proc"),
		memErr:  errors.New("no meminfo"),
		diskErr: errors.New("statfs failed"),
	}
	loader := &fakeLoader{err: errors.New("connection refused")}

	m := newTestMonitor(&fakeSubsystems{}, loader, &fakeErrors{}, host)
	snap := m.Sample(context.Background())

	if snap.Host.CPUPercent.OK() || snap.Host.CPUPercent.Unavailable != "no /proc" {
		t.Errorf("expected cpu unavailable, got %+v", snap.Host.CPUPercent)
	}
	if snap.Host.MemoryPercent.OK() {
		t.Error("expected memory unavailable")
	}
	if snap.Host.DiskFreeBytes.Unavailable != "statfs failed" {
		t.Errorf("expected disk unavailable, got %+v", snap.Host.DiskFreeBytes)
	}
	if snap.CheckpointUnavailable != "connection refused" {
		t.Errorf("expected checkpoint unavailable, got %q", snap.CheckpointUnavailable)
	}
	if snap.LatestCheckpoint != nil {
		t.Error("expected no checkpoint info")
	}
	if snap.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", snap.Status)
	}
}

func TestSample_NilSources(t *testing.T) {
	m := NewMonitor(Config{}, nil, nil, nil, nil, schedule.NewManual(), nil)
	snap := m.Sample(context.Background())

	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", snap.Status)
	}
	if snap.Host.CPUPercent.OK() {
		t.Error("expected cpu unavailable without sampler")
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		subs []domain.SubsystemState
		want SystemStatus
	}{
		{
			name: "all running",
			subs: []domain.SubsystemState{{Name: "a", Status: domain.SubsystemRunning}},
			want: StatusHealthy,
		},
		{
			name: "completed is fine",
			subs: []domain.SubsystemState{{Name: "a", Status: domain.SubsystemCompleted, Critical: true}},
			want: StatusHealthy,
		},
		{
			name: "non-critical failed",
			subs: []domain.SubsystemState{{Name: "a", Status: domain.SubsystemFailed}},
			want: StatusDegraded,
		},
		{
			name: "critical failed",
			subs: []domain.SubsystemState{
				{Name: "a", Status: domain.SubsystemFailed},
				{Name: "b", Status: domain.SubsystemFailed, Critical: true},
			},
			want: StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(Snapshot{Subsystems: tt.subs})
			if got != tt.want {
				t.Errorf("evaluate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSample_DoesNotShareState(t *testing.T) {
	errs := &fakeErrors{sum: recovery.Summary{
		Total:  1,
		ByKind: map[domain.ErrorKind]int{domain.ErrorKindNetwork: 1},
	}}
	m := newTestMonitor(&fakeSubsystems{}, &fakeLoader{}, errs, &fakeHost{})
	snap := m.Sample(context.Background())

	snap.ErrorsByKind[domain.ErrorKindNetwork] = 99
	if errs.sum.ByKind[domain.ErrorKindNetwork] != 1 {
		t.Error("snapshot mutation leaked into the error source")
	}
}

func TestLatest_SamplesOnce(t *testing.T) {
	loader := &fakeLoader{cp: &domain.Checkpoint{Cycle: 3}}
	m := newTestMonitor(&fakeSubsystems{}, loader, &fakeErrors{}, &fakeHost{})

	first := m.Latest(context.Background())
	if first.LatestCheckpoint == nil || first.LatestCheckpoint.Cycle != 3 {
		t.Fatalf("unexpected first snapshot: %+v", first.LatestCheckpoint)
	}

	loader.set(&domain.Checkpoint{Cycle: 4})
	if got := m.Latest(context.Background()); got.LatestCheckpoint.Cycle != 3 {
		t.Errorf("expected cached cycle 3, got %d", got.LatestCheckpoint.Cycle)
	}
}

func TestRun_SamplesOnTicks(t *testing.T) {
	loader := &fakeLoader{cp: &domain.Checkpoint{Cycle: 1}}
	sched := schedule.NewManual()
	m := NewMonitor(Config{}, &fakeSubsystems{}, loader, &fakeErrors{}, &fakeHost{}, sched, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	<-sched.Ready()

	loader.set(&domain.Checkpoint{Cycle: 2})
	sched.Tick()
	// The second tick is only received after the first sample finished.
	sched.Tick()

	if got := m.Latest(ctx); got.LatestCheckpoint.Cycle != 2 {
		t.Errorf("expected cycle 2 after tick, got %d", got.LatestCheckpoint.Cycle)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
