package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/korosuke613/ghadist/config"
	"github.com/korosuke613/ghadist/fetch"

	"github.com/robfig/cron/v3"
)

// syncTimeout bounds one target sync (resolution chain + download).
const syncTimeout = 10 * time.Minute

// Fetcher runs the fetch chain for one target.
type Fetcher interface {
	FetchIfNew(ctx context.Context, target config.Target, lastArtifactID int64) (*fetch.Result, error)
}

// TargetStatus is the per-target view exposed to the status API.
type TargetStatus struct {
	Key            string     `json:"key"`
	Dest           string     `json:"dest"`
	Schedule       string     `json:"schedule,omitempty"`
	LastArtifactID int64      `json:"last_artifact_id,omitempty"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}

// Scheduler keeps fetch targets in sync. Targets with a cron schedule
// run on it; the rest run on a shared interval ticker.
type Scheduler struct {
	fetcher  Fetcher
	targets  []config.Target
	state    *StateStore
	cron     *cron.Cron
	interval time.Duration

	mu        sync.RWMutex
	entries   map[string]cron.EntryID
	lastSync  time.Time
	syncCount int64
	errCount  int64
	statuses  map[string]*TargetStatus
}

// New creates a Scheduler and registers every scheduled target with the
// cron runner. The runner is not started yet; call Start.
func New(fetcher Fetcher, targets []config.Target, cfg *config.WatchConfig, state *StateStore) (*Scheduler, error) {
	s := &Scheduler{
		fetcher:  fetcher,
		targets:  targets,
		state:    state,
		cron:     cron.New(),
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		entries:  make(map[string]cron.EntryID),
		statuses: make(map[string]*TargetStatus),
	}

	for _, t := range targets {
		s.statuses[t.Key()] = &TargetStatus{
			Key:      t.Key(),
			Dest:     t.Dest,
			Schedule: t.Schedule,
		}
		if id := state.Get(t.Key()); id != 0 {
			s.statuses[t.Key()].LastArtifactID = id
		}

		if t.Schedule == "" {
			continue
		}

		target := t
		entryID, err := s.cron.AddFunc(t.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			s.syncTarget(ctx, target)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule target %s (%q): %w", t.Key(), t.Schedule, err)
		}
		s.entries[t.Key()] = entryID
	}

	return s, nil
}

// Start begins cron scheduling.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started",
		"targets", len(s.targets),
		"scheduled", len(s.entries),
		"interval", s.interval.String(),
	)
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

// Run performs an immediate sync of all targets, then keeps the
// unscheduled ones in sync on the interval ticker until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.SyncAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync loop stopped")
			return
		case <-ticker.C:
			s.syncUnscheduled(ctx)
		}
	}
}

// SyncAll syncs every target once.
func (s *Scheduler) SyncAll(ctx context.Context) {
	for _, t := range s.targets {
		s.syncTarget(ctx, t)
	}
}

func (s *Scheduler) syncUnscheduled(ctx context.Context) {
	for _, t := range s.targets {
		if t.Schedule != "" {
			continue
		}
		s.syncTarget(ctx, t)
	}
}

func (s *Scheduler) syncTarget(ctx context.Context, target config.Target) {
	key := target.Key()
	lastID := s.state.Get(key)

	result, err := s.fetcher.FetchIfNew(ctx, target, lastID)

	now := time.Now()
	s.mu.Lock()
	s.lastSync = now
	s.syncCount++
	status := s.statuses[key]
	status.LastSync = &now
	if err != nil {
		s.errCount++
		status.LastError = err.Error()
	} else {
		status.LastError = ""
		if result != nil {
			status.LastArtifactID = result.Artifact.ID
		}
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("target sync failed", "target", key, "error", err)
		return
	}

	if result == nil {
		slog.Debug("target up to date", "target", key, "artifact_id", lastID)
		return
	}

	if err := s.state.Set(key, result.Artifact.ID); err != nil {
		slog.Error("failed to persist state", "target", key, "error", err)
	}
}

// TargetCount returns the number of configured targets (StatusProvider).
func (s *Scheduler) TargetCount() int {
	return len(s.targets)
}

// LastSyncTime returns the time of the most recent sync (StatusProvider).
func (s *Scheduler) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// SyncCounts returns total and failed sync counts (StatusProvider).
func (s *Scheduler) SyncCounts() (total, failed int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncCount, s.errCount
}

// TargetStatuses returns a snapshot of per-target status (StatusProvider).
func (s *Scheduler) TargetStatuses() []TargetStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]TargetStatus, 0, len(s.targets))
	for _, t := range s.targets {
		status := *s.statuses[t.Key()]
		if entryID, ok := s.entries[t.Key()]; ok {
			next := s.cron.Entry(entryID).Next
			if !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}
