package controlsurface

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/timeutil"
)

type memStore struct {
	mu     sync.Mutex
	latest map[string]model.VesselLatest
}

func newMemStore() *memStore { return &memStore{latest: make(map[string]model.VesselLatest)} }

func (m *memStore) UpsertVesselLatest(ctx context.Context, v model.VesselLatest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[v.MMSI] = v
	return nil
}
func (m *memStore) InsertAlert(ctx context.Context, a *model.Alert) (int64, error) { return 1, nil }
func (m *memStore) InsertPosition(ctx context.Context, p model.AisPoint) error     { return nil }
func (m *memStore) UpsertCooldown(ctx context.Context, mmsi string, ruleType model.RuleType, timestamp time.Time) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	csv := "mmsi,timestamp,lat,lon\n111222333,1700000000,40.0,-74.0\n"
	path := filepath.Join(dataDir, "points.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := aisconfig.Empty()
	cfg.DataDir = &dataDir
	s := New(cfg, newMemStore(), timeutil.NewMockClock(time.Unix(0, 0)))
	return s, path
}

func TestHandleStartRejectsPathOutsideDataDir(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()

	body, _ := json.Marshal(startRequest{Path: "/etc/passwd", Speedup: 100})
	req := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleStartAndStatusAndStop(t *testing.T) {
	s, path := newTestServer(t)
	mux := s.Mux()

	body, _ := json.Marshal(startRequest{Path: path, Speedup: 1_000_000})
	req := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d, body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp startResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a non-empty session ID")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/replay/status", nil)
	statusRec := httptest.NewRecorder()
	mux.ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", statusRec.Code)
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/replay/stop", nil)
	stopRec := httptest.NewRecorder()
	mux.ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusAccepted {
		t.Errorf("stop status = %d, want %d", stopRec.Code, http.StatusAccepted)
	}
	var stopResp stopResponse
	if err := json.Unmarshal(stopRec.Body.Bytes(), &stopResp); err != nil {
		t.Fatalf("decode stop response: %v", err)
	}
	if !stopResp.Stopping {
		t.Error("expected stopping=true in stop response")
	}
}

// TestHandleStartAllowsRestartAfterStop guards against the active-session
// slot staying occupied once a session is no longer running: a stopped (or
// naturally finished) session must not permanently block future starts.
func TestHandleStartAllowsRestartAfterStop(t *testing.T) {
	s, path := newTestServer(t)
	mux := s.Mux()

	body, _ := json.Marshal(startRequest{Path: path, Speedup: 1})
	req1 := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusAccepted {
		t.Fatalf("first start status = %d, want %d", rec1.Code, http.StatusAccepted)
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/replay/stop", nil)
	stopRec := httptest.NewRecorder()
	mux.ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d, want %d", stopRec.Code, http.StatusAccepted)
	}

	// Give the session's background goroutine a moment to observe
	// cancellation and release the active-session slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		cleared := s.activeID == ""
		s.mu.Unlock()
		if cleared {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("activeID was never cleared after stop")
		}
		time.Sleep(time.Millisecond)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusAccepted {
		t.Errorf("restart status = %d, want %d, body=%s", rec2.Code, http.StatusAccepted, rec2.Body.String())
	}
}

func TestHandleStartRejectsConcurrentSession(t *testing.T) {
	s, path := newTestServer(t)
	mux := s.Mux()

	body, _ := json.Marshal(startRequest{Path: path, Speedup: 1})
	req1 := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusAccepted {
		t.Fatalf("first start status = %d, want %d", rec1.Code, http.StatusAccepted)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/replay/start", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want %d", rec2.Code, http.StatusConflict)
	}
}

func TestHandleStopWithNoActiveSession(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodPost, "/replay/stop", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleStreamSendsInitialPing(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read first SSE line: %v", err)
	}
	if line != ": ping\n" {
		t.Errorf("first line = %q, want %q", line, ": ping\n")
	}
}
