package models

import "time"

// QuizResult is an audit record of one completed quiz.
type QuizResult struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	CompletedAt time.Time `json:"completed_at"`
}

// CoachingRecord is an audit record of one completion-service request.
type CoachingRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Request   string    `json:"request"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Succeeded reports whether the completion service returned a reply.
func (r CoachingRecord) Succeeded() bool {
	return r.Error == ""
}
