package scheduler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}

	if got := s.Get("acme/widgets/build"); got != 0 {
		t.Errorf("Get = %d, want 0 for unknown key", got)
	}

	if err := s.Set("acme/widgets/build", 42); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Reload from disk
	s2, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore (reload): %v", err)
	}
	if got := s2.Get("acme/widgets/build"); got != 42 {
		t.Errorf("Get after reload = %d, want 42", got)
	}
}

func TestStateStore_MissingFile(t *testing.T) {
	s, err := NewStateStore(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	if got := s.Get("k"); got != 0 {
		t.Errorf("Get = %d, want 0", got)
	}
}

func TestStateStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not-json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStateStore(path); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestStateStore_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewStateStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", 2); err != nil {
		t.Fatal(err)
	}
	if got := s.Get("k"); got != 2 {
		t.Errorf("Get = %d, want 2", got)
	}
}
