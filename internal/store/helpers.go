package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanQuizResults drains rows of (id, user_id, score, max_score, completed_at).
func scanQuizResults(rows *sql.Rows) ([]models.QuizResult, error) {
	defer rows.Close()
	var out []models.QuizResult
	for rows.Next() {
		var r models.QuizResult
		if err := rows.Scan(&r.ID, &r.UserID, &r.Score, &r.MaxScore, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz result rows: %w", err)
	}
	return out, nil
}

// scanCoachingRecords drains rows of (id, user_id, request, reply, error, created_at).
func scanCoachingRecords(rows *sql.Rows) ([]models.CoachingRecord, error) {
	defer rows.Close()
	var out []models.CoachingRecord
	for rows.Next() {
		var r models.CoachingRecord
		var reply, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Request, &reply, &errText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coaching record failed: %w", err)
		}
		r.Reply = reply.String
		r.Error = errText.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coaching record rows: %w", err)
	}
	return out, nil
}
