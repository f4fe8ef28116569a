// This file implements an SQLite-backed audit store.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/HandCoach/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddQuizResult(r models.QuizResult) error {
	r.ID = ensureID(r.ID)
	_, err := s.db.Exec(`INSERT INTO quiz_results (id, user_id, score, max_score, completed_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Score, r.MaxScore, r.CompletedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddQuizResult failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert quiz result for %s: %w", r.UserID, err)
	}
	slog.Debug("SQLiteStore AddQuizResult succeeded", "userID", r.UserID, "score", r.Score)
	return nil
}

func (s *SQLiteStore) AddCoachingRecord(r models.CoachingRecord) error {
	r.ID = ensureID(r.ID)
	_, err := s.db.Exec(`INSERT INTO coaching_records (id, user_id, request, reply, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Request, nilIfEmpty(r.Reply), nilIfEmpty(r.Error), r.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddCoachingRecord failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert coaching record for %s: %w", r.UserID, err)
	}
	slog.Debug("SQLiteStore AddCoachingRecord succeeded", "userID", r.UserID)
	return nil
}

func (s *SQLiteStore) GetQuizResults(userID string, limit int) ([]models.QuizResult, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, max_score, completed_at FROM quiz_results
		WHERE (? = '' OR user_id = ?) ORDER BY completed_at DESC LIMIT ?`, userID, userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore GetQuizResults query failed", "error", err)
		return nil, fmt.Errorf("failed to query quiz results: %w", err)
	}
	return scanQuizResults(rows)
}

func (s *SQLiteStore) GetCoachingRecords(userID string, limit int) ([]models.CoachingRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, request, reply, error, created_at FROM coaching_records
		WHERE (? = '' OR user_id = ?) ORDER BY created_at DESC LIMIT ?`, userID, userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore GetCoachingRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query coaching records: %w", err)
	}
	return scanCoachingRecords(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
