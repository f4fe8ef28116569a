package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
)

func TestSessionStore_GetOrCreateDefaults(t *testing.T) {
	st := NewInMemorySessionStore()
	s := st.GetOrCreate("alice")
	if s.UserID != "alice" || s.Mode() != models.ModeIdle || s.QuizIndex() != 0 || s.Score() != 0 {
		t.Fatalf("unexpected new session: %+v", s)
	}
}

func TestSessionStore_UpdateCommitsOnlyOnSuccess(t *testing.T) {
	st := NewInMemorySessionStore()
	ctx := context.Background()

	err := st.Update(ctx, "alice", func(s *models.Session) error {
		s.State = &models.QuizState{Index: 1, Score: 8}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = st.Update(ctx, "alice", func(s *models.Session) error {
		s.Quiz().Score = 999
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	s := st.GetOrCreate("alice")
	if s.Score() != 8 || s.QuizIndex() != 1 {
		t.Errorf("failed update leaked: score=%d index=%d", s.Score(), s.QuizIndex())
	}
}

func TestSessionStore_SnapshotIsIsolated(t *testing.T) {
	st := NewInMemorySessionStore()
	_ = st.Update(context.Background(), "alice", func(s *models.Session) error {
		s.State = &models.QuizState{Index: 1, Score: 8}
		return nil
	})

	snap := st.GetOrCreate("alice")
	snap.Quiz().Score = 100

	if got := st.GetOrCreate("alice").Score(); got != 8 {
		t.Errorf("snapshot mutation leaked into store: %d", got)
	}
}

func TestSessionStore_Reset(t *testing.T) {
	st := NewInMemorySessionStore()
	_ = st.Update(context.Background(), "alice", func(s *models.Session) error {
		s.State = &models.GuidedState{Step: 3}
		return nil
	})
	st.Reset("alice")
	if s := st.GetOrCreate("alice"); s.Mode() != models.ModeIdle || s.GuidedStep() != 0 {
		t.Errorf("reset did not restore idle: %+v", s)
	}
}

func TestSessionStore_UsersAreIsolated(t *testing.T) {
	st := NewInMemorySessionStore()
	qe := NewQuizEngine(fourStreetScript())
	ctx := context.Background()

	_ = st.Update(ctx, "alice", func(s *models.Session) error { qe.Begin(s); return nil })
	_ = st.Update(ctx, "bob", func(s *models.Session) error { qe.Begin(s); return nil })
	_ = st.Update(ctx, "alice", func(s *models.Session) error {
		_, err := qe.Answer(s, 0, "D")
		return err
	})

	if a := st.GetOrCreate("alice"); a.Score() != 10 || a.QuizIndex() != 1 {
		t.Errorf("alice: score=%d index=%d", a.Score(), a.QuizIndex())
	}
	if b := st.GetOrCreate("bob"); b.Score() != 0 || b.QuizIndex() != 0 {
		t.Errorf("bob saw alice's progress: score=%d index=%d", b.Score(), b.QuizIndex())
	}
}

func TestSessionStore_ConcurrentDuplicatePressesScoreOnce(t *testing.T) {
	st := NewInMemorySessionStore()
	qe := NewQuizEngine(fourStreetScript())
	ctx := context.Background()
	_ = st.Update(ctx, "alice", func(s *models.Session) error { qe.Begin(s); return nil })

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Update(ctx, "alice", func(s *models.Session) error {
				_, err := qe.Answer(s, 0, "D")
				return err
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly one accepted press, got %d", accepted)
	}
	if s := st.GetOrCreate("alice"); s.Score() != 10 || s.QuizIndex() != 1 {
		t.Errorf("expected score 10 at index 1, got %d at %d", s.Score(), s.QuizIndex())
	}
}

func TestSessionStore_ParallelUsers(t *testing.T) {
	st := NewInMemorySessionStore()
	qe := NewQuizEngine(fourStreetScript())
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 50; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", u)
			_ = st.Update(ctx, id, func(s *models.Session) error { qe.Begin(s); return nil })
			for i := 0; i < 3; i++ {
				_ = st.Update(ctx, id, func(s *models.Session) error {
					_, err := qe.Answer(s, i, "A")
					return err
				})
			}
		}(u)
	}
	wg.Wait()

	stats := st.Stats()
	if stats.Total != 50 || stats.ByMode[models.ModeQuiz] != 50 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	for u := 0; u < 50; u++ {
		s := st.GetOrCreate(fmt.Sprintf("user-%d", u))
		// A answers: 7 + 6 + 10
		if s.Score() != 23 || s.QuizIndex() != 3 {
			t.Errorf("user-%d: score=%d index=%d", u, s.Score(), s.QuizIndex())
		}
	}
}

func TestSessionStore_EvictIdle(t *testing.T) {
	st := NewInMemorySessionStore()
	now := time.Now()
	st.now = func() time.Time { return now }

	st.GetOrCreate("idle")
	_ = st.Update(context.Background(), "busy", func(s *models.Session) error {
		s.State = &models.QuizState{}
		return nil
	})

	now = now.Add(2 * time.Hour)
	if n := st.EvictIdle(time.Hour); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if stats := st.Stats(); stats.Total != 1 || stats.ByMode[models.ModeQuiz] != 1 {
		t.Errorf("unexpected stats after eviction: %+v", stats)
	}
	// evicted users are recreated lazily
	if s := st.GetOrCreate("idle"); s.Mode() != models.ModeIdle {
		t.Errorf("recreated session not idle: %s", s.Mode())
	}
}

func TestSessionStore_UpdateHonorsCancelledContext(t *testing.T) {
	st := NewInMemorySessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := st.Update(ctx, "alice", func(s *models.Session) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected cancelled update to be skipped, err=%v called=%v", err, called)
	}
}

func TestSessionStore_Snapshot(t *testing.T) {
	st := NewInMemorySessionStore()
	ctx := context.Background()
	st.GetOrCreate("bob")
	_ = st.Update(ctx, "alice", func(s *models.Session) error {
		s.State = &models.QuizState{Index: 2, Score: 15}
		return nil
	})

	snap := st.Snapshot()
	if len(snap) != 2 || snap[0].UserID != "alice" || snap[1].UserID != "bob" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[0].Score() != 15 || snap[1].Mode() != models.ModeIdle {
		t.Errorf("unexpected snapshot contents: %+v", snap)
	}

	// mutating the snapshot must not leak into the store
	snap[0].Quiz().Score = 99
	if s := st.GetOrCreate("alice"); s.Score() != 15 {
		t.Errorf("snapshot aliased live state: score=%d", s.Score())
	}
}
