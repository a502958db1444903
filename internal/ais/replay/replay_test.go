package replay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aegisais/detector/internal/ais/broadcast"
	"github.com/aegisais/detector/internal/ais/cooldown"
	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/ais/pipeline"
	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/timeutil"
)

type memStore struct {
	mu     sync.Mutex
	latest map[string]model.VesselLatest
	alerts []*model.Alert
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{latest: make(map[string]model.VesselLatest)}
}

func (m *memStore) UpsertVesselLatest(ctx context.Context, v model.VesselLatest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[v.MMSI] = v
	return nil
}

func (m *memStore) InsertAlert(ctx context.Context, a *model.Alert) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.alerts = append(m.alerts, a)
	return m.nextID, nil
}

func (m *memStore) InsertPosition(ctx context.Context, p model.AisPoint) error { return nil }

func (m *memStore) UpsertCooldown(ctx context.Context, mmsi string, ruleType model.RuleType, timestamp time.Time) error {
	return nil
}

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "points.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestSessionRunProcessesEveryPointToCompletion(t *testing.T) {
	csv := "mmsi,timestamp,lat,lon\n" +
		"111222333,1700000000,40.0,-74.0\n" +
		"111222333,1700000001,40.0001,-74.0\n" +
		"111222333,1700000002,40.0002,-74.0\n"
	path := writeCSV(t, csv)

	store := newMemStore()
	pl := pipeline.New(aisconfig.Empty(), cooldown.NewStore(300*time.Second), store)
	hub := broadcast.NewHub()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	session := NewSession("test-1", path, 1_000_000, pl, hub, aisconfig.Empty(), clock)
	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	state := session.State()
	if state.Processed != 3 {
		t.Errorf("Processed = %d, want 3", state.Processed)
	}
	if state.Running {
		t.Error("expected Running = false after Run returns")
	}
}

func TestSessionStopHaltsBeforeExhaustingStream(t *testing.T) {
	var csv string
	csv = "mmsi,timestamp,lat,lon\n"
	base := 1700000000
	for i := 0; i < 50; i++ {
		csv += "111222333," + time.Unix(int64(base+i), 0).UTC().Format("2006-01-02T15:04:05") + ",40.0,-74.0\n"
	}
	path := writeCSV(t, csv)

	store := newMemStore()
	pl := pipeline.New(aisconfig.Empty(), cooldown.NewStore(300*time.Second), store)
	hub := broadcast.NewHub()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	// speedup of 1 with real event deltas of 1s each would pace for ~50s of
	// mock-sleep; stop immediately instead of letting it run to exhaustion.
	session := NewSession("test-2", path, 1, pl, hub, aisconfig.Empty(), clock)
	session.Stop()

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	state := session.State()
	if state.Processed >= 50 {
		t.Errorf("Processed = %d, expected early stop before exhausting the stream", state.Processed)
	}
}

func TestSessionRunRespectsContextCancellation(t *testing.T) {
	csv := "mmsi,timestamp,lat,lon\n111222333,1700000000,40.0,-74.0\n"
	path := writeCSV(t, csv)

	store := newMemStore()
	pl := pipeline.New(aisconfig.Empty(), cooldown.NewStore(300*time.Second), store)
	hub := broadcast.NewHub()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	session := NewSession("test-3", path, 1, pl, hub, aisconfig.Empty(), clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := session.Run(ctx)
	if err == nil {
		t.Fatal("expected a context-cancellation error")
	}
}

func TestSessionBroadcastsAlertsThroughHub(t *testing.T) {
	csv := "mmsi,timestamp,lat,lon\n" +
		"111222333,1700000000,40.0000,-74.0000\n" +
		"111222333,1700000060,41.0000,-74.0000\n" // teleport
	path := writeCSV(t, csv)

	store := newMemStore()
	pl := pipeline.New(aisconfig.Empty(), cooldown.NewStore(300*time.Second), store)
	hub := broadcast.NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	session := NewSession("test-4", path, 1_000_000, pl, hub, aisconfig.Empty(), clock)
	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	sawAlert := false
	timeout := time.After(2 * time.Second)
	for !sawAlert {
		select {
		case msg := <-ch:
			if msg.Kind == broadcast.KindAlert {
				sawAlert = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for an alert broadcast")
		case err := <-done:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		}
	}
}

func TestRegistryStartStopStatus(t *testing.T) {
	csv := "mmsi,timestamp,lat,lon\n111222333,1700000000,40.0,-74.0\n"
	path := writeCSV(t, csv)

	store := newMemStore()
	pl := pipeline.New(aisconfig.Empty(), cooldown.NewStore(300*time.Second), store)
	hub := broadcast.NewHub()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	reg := NewRegistry()
	id := reg.Start(context.Background(), path, 1_000_000, pl, hub, aisconfig.Empty(), clock)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := reg.Status(id)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if !st.Running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := reg.Stop(id); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, err := reg.Status("nonexistent"); err == nil {
		t.Fatal("expected error for unknown session ID")
	}
}
