package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		subs       []domain.SubsystemState
		wantCode   int
		wantStatus SystemStatus
	}{
		{
			name:       "healthy",
			subs:       []domain.SubsystemState{{Name: "metro", Status: domain.SubsystemRunning, Critical: true}},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "degraded still ok",
			subs:       []domain.SubsystemState{{Name: "logs", Status: domain.SubsystemFailed}},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name:       "critical",
			subs:       []domain.SubsystemState{{Name: "metro", Status: domain.SubsystemFailed, Critical: true}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(Config{}, &fakeSubsystems{states: tt.subs}, &fakeLoader{}, &fakeErrors{}, &fakeHost{}, schedule.NewManual(), nil)
			srv := NewServer(m, 0)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["status"] != string(tt.wantStatus) {
				t.Errorf("expected status %s, got %v", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	loader := &fakeLoader{cp: &domain.Checkpoint{Cycle: 12, Data: map[string]any{"success": false}}}
	m := NewMonitor(Config{}, &fakeSubsystems{}, loader, &fakeErrors{}, &fakeHost{cpu: 5}, schedule.NewManual(), nil)
	srv := NewServer(m, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.LatestCheckpoint == nil || snap.LatestCheckpoint.Cycle != 12 {
		t.Errorf("unexpected checkpoint: %+v", snap.LatestCheckpoint)
	}
	if snap.LatestCheckpoint.Success {
		t.Error("expected failed cycle")
	}
	if snap.Host.CPUPercent.Value != 5 {
		t.Errorf("unexpected cpu: %+v", snap.Host.CPUPercent)
	}
}

func TestServer_Metrics(t *testing.T) {
	m := NewMonitor(Config{}, nil, nil, nil, &fakeHost{}, schedule.NewManual(), nil)
	srv := NewServer(m, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
