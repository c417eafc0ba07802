package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/korosuke613/ghadist/config"
	"github.com/korosuke613/ghadist/fetch"
	"github.com/korosuke613/ghadist/github"
)

// mockFetcher is a mock fetcher for testing.
type mockFetcher struct {
	mu sync.Mutex

	artifactID int64
	err        error

	calls   int
	lastIDs []int64
}

func (m *mockFetcher) FetchIfNew(_ context.Context, _ config.Target, lastArtifactID int64) (*fetch.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastIDs = append(m.lastIDs, lastArtifactID)

	if m.err != nil {
		return nil, m.err
	}
	if lastArtifactID == m.artifactID {
		return nil, nil
	}
	return &fetch.Result{
		Artifact: github.Artifact{ID: m.artifactID, Name: "wheel"},
		Dest:     "dist",
	}, nil
}

func testConfig() *config.WatchConfig {
	return &config.WatchConfig{IntervalMinutes: 5}
}

func newTestState(t *testing.T) *StateStore {
	t.Helper()
	state, err := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	return state
}

func TestSyncAll_RecordsArtifact(t *testing.T) {
	fetcher := &mockFetcher{artifactID: 7}
	target := config.Target{Owner: "acme", Repo: "widgets", Workflow: "build", Dest: "dist"}
	state := newTestState(t)

	s, err := New(fetcher, []config.Target{target}, testConfig(), state)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.SyncAll(context.Background())

	if fetcher.calls != 1 {
		t.Errorf("calls = %d, want 1", fetcher.calls)
	}
	if got := state.Get(target.Key()); got != 7 {
		t.Errorf("state = %d, want 7", got)
	}

	total, failed := s.SyncCounts()
	if total != 1 || failed != 0 {
		t.Errorf("SyncCounts = (%d, %d), want (1, 0)", total, failed)
	}
	if s.LastSyncTime().IsZero() {
		t.Error("LastSyncTime is zero after sync")
	}
}

func TestSyncAll_SecondRunSkips(t *testing.T) {
	fetcher := &mockFetcher{artifactID: 7}
	target := config.Target{Owner: "acme", Repo: "widgets", Workflow: "build", Dest: "dist"}
	state := newTestState(t)

	s, err := New(fetcher, []config.Target{target}, testConfig(), state)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.SyncAll(context.Background())
	s.SyncAll(context.Background())

	if fetcher.calls != 2 {
		t.Fatalf("calls = %d, want 2", fetcher.calls)
	}
	// The second sync passes the recorded artifact ID back to the fetcher
	if fetcher.lastIDs[0] != 0 || fetcher.lastIDs[1] != 7 {
		t.Errorf("lastIDs = %v, want [0 7]", fetcher.lastIDs)
	}
}

func TestSyncAll_ErrorCounted(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("boom")}
	target := config.Target{Owner: "acme", Repo: "widgets", Workflow: "build", Dest: "dist"}
	state := newTestState(t)

	s, err := New(fetcher, []config.Target{target}, testConfig(), state)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.SyncAll(context.Background())

	total, failed := s.SyncCounts()
	if total != 1 || failed != 1 {
		t.Errorf("SyncCounts = (%d, %d), want (1, 1)", total, failed)
	}
	if got := state.Get(target.Key()); got != 0 {
		t.Errorf("state = %d, want 0 after failed sync", got)
	}

	statuses := s.TargetStatuses()
	if len(statuses) != 1 {
		t.Fatalf("len(statuses) = %d, want 1", len(statuses))
	}
	if statuses[0].LastError == "" {
		t.Error("LastError is empty after failed sync")
	}
}

func TestNew_RegistersSchedules(t *testing.T) {
	fetcher := &mockFetcher{artifactID: 1}
	targets := []config.Target{
		{Owner: "a", Repo: "r1", Workflow: "build", Dest: "dist", Schedule: "0 8 * * *"},
		{Owner: "a", Repo: "r2", Workflow: "build", Dest: "dist"},
	}

	s, err := New(fetcher, targets, testConfig(), newTestState(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	if len(s.entries) != 1 {
		t.Errorf("len(entries) = %d, want 1 (only the scheduled target)", len(s.entries))
	}
	if s.TargetCount() != 2 {
		t.Errorf("TargetCount = %d, want 2", s.TargetCount())
	}

	statuses := s.TargetStatuses()
	if len(statuses) != 2 {
		t.Fatalf("len(statuses) = %d, want 2", len(statuses))
	}
	if statuses[0].Schedule != "0 8 * * *" {
		t.Errorf("statuses[0].Schedule = %q, want %q", statuses[0].Schedule, "0 8 * * *")
	}
	if statuses[1].Schedule != "" {
		t.Errorf("statuses[1].Schedule = %q, want empty", statuses[1].Schedule)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	fetcher := &mockFetcher{}
	targets := []config.Target{
		{Owner: "a", Repo: "r", Workflow: "build", Dest: "dist", Schedule: "bad expr"},
	}

	if _, err := New(fetcher, targets, testConfig(), newTestState(t)); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
