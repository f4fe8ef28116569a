// This file implements a PostgreSQL-backed audit store.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/HandCoach/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddQuizResult(r models.QuizResult) error {
	r.ID = ensureID(r.ID)
	_, err := s.db.Exec(`INSERT INTO quiz_results (id, user_id, score, max_score, completed_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.UserID, r.Score, r.MaxScore, r.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore AddQuizResult failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert quiz result for %s: %w", r.UserID, err)
	}
	slog.Debug("PostgresStore AddQuizResult succeeded", "userID", r.UserID, "score", r.Score)
	return nil
}

func (s *PostgresStore) AddCoachingRecord(r models.CoachingRecord) error {
	r.ID = ensureID(r.ID)
	_, err := s.db.Exec(`INSERT INTO coaching_records (id, user_id, request, reply, error, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.UserID, r.Request, nilIfEmpty(r.Reply), nilIfEmpty(r.Error), r.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddCoachingRecord failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert coaching record for %s: %w", r.UserID, err)
	}
	slog.Debug("PostgresStore AddCoachingRecord succeeded", "userID", r.UserID)
	return nil
}

func (s *PostgresStore) GetQuizResults(userID string, limit int) ([]models.QuizResult, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, max_score, completed_at FROM quiz_results
		WHERE ($1 = '' OR user_id = $1) ORDER BY completed_at DESC LIMIT $2`, userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore GetQuizResults query failed", "error", err)
		return nil, fmt.Errorf("failed to query quiz results: %w", err)
	}
	return scanQuizResults(rows)
}

func (s *PostgresStore) GetCoachingRecords(userID string, limit int) ([]models.CoachingRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, request, reply, error, created_at FROM coaching_records
		WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC LIMIT $2`, userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore GetCoachingRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query coaching records: %w", err)
	}
	return scanCoachingRecords(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
