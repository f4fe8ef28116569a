package flow

import (
	"context"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// SessionStore defines the interface for managing per-user session state.
//
// Update calls for the same user are serialized; calls for different users
// never contend on a shared lock beyond a brief map lookup.
type SessionStore interface {
	// GetOrCreate returns a snapshot of the user's session, creating it if absent
	GetOrCreate(userID string) models.Session

	// Reset returns the user's session to the initial Idle state
	Reset(userID string)

	// Update applies fn to the user's session atomically; if fn returns an error nothing is committed
	Update(ctx context.Context, userID string, fn func(s *models.Session) error) error
}

// SessionStats summarizes live sessions for administrative views.
type SessionStats struct {
	Total  int                 `json:"total"`
	ByMode map[models.Mode]int `json:"by_mode"`
}
