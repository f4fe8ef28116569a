// Package store provides storage backends for HandCoach audit records.
//
// Quiz results and coaching requests are kept in memory, SQLite or PostgreSQL.
// Sessions are never stored here.
package store

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/google/uuid"
)

// DefaultQueryLimit caps list queries when no limit is given.
const DefaultQueryLimit = 100

// Store is the audit record backend.
type Store interface {
	AddQuizResult(r models.QuizResult) error
	AddCoachingRecord(r models.CoachingRecord) error
	// GetQuizResults lists results newest first. An empty userID matches every user.
	GetQuizResults(userID string, limit int) ([]models.QuizResult, error)
	// GetCoachingRecords lists records newest first. An empty userID matches every user.
	GetCoachingRecords(userID string, limit int) ([]models.CoachingRecord, error)
	Close() error
}

// Opts holds configuration options for database stores.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

var postgresKeyValue = regexp.MustCompile(`(^|\s)(host|user|dbname|password|sslmode|port)=`)

// DetectDSNType returns "postgres" for PostgreSQL URLs or key=value DSNs and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if postgresKeyValue.MatchString(dsn) {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the store matching dsn. An empty dsn yields an in-memory store.
func New(dsn string) (Store, error) {
	if dsn == "" {
		slog.Info("No database DSN configured, keeping audit records in memory")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Debug("Store using PostgreSQL")
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	slog.Debug("Store using SQLite")
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// ensureID assigns a fresh ID when id is empty.
func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}

// InMemoryStore is a concurrency-safe in-memory store.
type InMemoryStore struct {
	mu       sync.RWMutex
	results  []models.QuizResult
	coaching []models.CoachingRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddQuizResult(r models.QuizResult) error {
	if r.UserID == "" {
		return fmt.Errorf("quiz result has no user")
	}
	r.ID = ensureID(r.ID)
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) AddCoachingRecord(r models.CoachingRecord) error {
	if r.UserID == "" {
		return fmt.Errorf("coaching record has no user")
	}
	r.ID = ensureID(r.ID)
	s.mu.Lock()
	s.coaching = append(s.coaching, r)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetQuizResults(userID string, limit int) ([]models.QuizResult, error) {
	s.mu.RLock()
	var out []models.QuizResult
	for _, r := range s.results {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *InMemoryStore) GetCoachingRecords(userID string, limit int) ([]models.CoachingRecord, error) {
	s.mu.RLock()
	var out []models.CoachingRecord
	for _, r := range s.coaching {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
