package flow

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
)

type sessionEntry struct {
	mu      sync.Mutex
	session *models.Session
	evicted bool
}

// InMemorySessionStore implements SessionStore with one mutex per user.
type InMemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

// NewInMemorySessionStore creates an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	slog.Debug("Creating InMemorySessionStore")
	return &InMemorySessionStore{
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// entry returns the live entry for userID, creating it if needed.
func (st *InMemorySessionStore) entry(userID string) *sessionEntry {
	st.mu.RLock()
	e, ok := st.entries[userID]
	st.mu.RUnlock()
	if ok {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok := st.entries[userID]; ok {
		return e
	}
	e = &sessionEntry{session: models.NewSession(userID, st.now())}
	st.entries[userID] = e
	slog.Debug("SessionStore created session", "userID", userID)
	return e
}

// lock returns userID's entry with its mutex held, retrying if the entry was
// evicted between lookup and locking.
func (st *InMemorySessionStore) lock(userID string) *sessionEntry {
	for {
		e := st.entry(userID)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

// GetOrCreate returns a snapshot of the user's session.
func (st *InMemorySessionStore) GetOrCreate(userID string) models.Session {
	e := st.lock(userID)
	defer e.mu.Unlock()
	return *e.session.Clone()
}

// Reset returns the user's session to Idle.
func (st *InMemorySessionStore) Reset(userID string) {
	e := st.lock(userID)
	defer e.mu.Unlock()
	e.session.Reset()
	e.session.UpdatedAt = st.now()
	slog.Debug("SessionStore reset session", "userID", userID)
}

// Update runs fn on a copy of the session under the user's lock and commits
// the copy only if fn succeeds.
func (st *InMemorySessionStore) Update(ctx context.Context, userID string, fn func(s *models.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := st.lock(userID)
	defer e.mu.Unlock()

	working := e.session.Clone()
	if err := fn(working); err != nil {
		slog.Debug("SessionStore update rejected", "userID", userID, "mode", e.session.Mode(), "error", err)
		return err
	}
	working.UpdatedAt = st.now()
	e.session = working
	return nil
}

// Snapshot returns copies of every live session ordered by user ID.
func (st *InMemorySessionStore) Snapshot() []models.Session {
	st.mu.RLock()
	entries := make([]*sessionEntry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]models.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.evicted {
			out = append(out, *e.session.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Stats counts live sessions per mode.
func (st *InMemorySessionStore) Stats() SessionStats {
	stats := SessionStats{ByMode: make(map[models.Mode]int)}
	for _, s := range st.Snapshot() {
		stats.Total++
		stats.ByMode[s.Mode()]++
	}
	return stats
}

// EvictIdle drops Idle sessions untouched for longer than olderThan. Sessions
// inside a flow, or currently locked, are kept.
func (st *InMemorySessionStore) EvictIdle(olderThan time.Duration) int {
	cutoff := st.now().Add(-olderThan)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, e := range st.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.session.Mode() == models.ModeIdle && e.session.UpdatedAt.Before(cutoff) {
			e.evicted = true
			delete(st.entries, id)
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		slog.Info("SessionStore evicted idle sessions", "count", evicted, "olderThan", olderThan)
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is cancelled.
func (st *InMemorySessionStore) RunEviction(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.EvictIdle(olderThan)
		}
	}
}
