// Per-user session state for the quiz and guided-input flows.

package models

import "time"

// Mode names the flow currently owning a session's inputs.
type Mode string

// Mode constants.
const (
	ModeIdle        Mode = "idle"
	ModeQuiz        Mode = "quiz"
	ModeGuidedInput Mode = "guided_input"
)

// FlowState is the mode-specific part of a session. It is one of IdleState,
// *QuizState or *GuidedState; the unexported method keeps the set closed.
type FlowState interface {
	Mode() Mode
	clone() FlowState
}

// IdleState is the state of a session that is not inside any flow.
type IdleState struct{}

// Mode implements FlowState.
func (IdleState) Mode() Mode { return ModeIdle }

func (s IdleState) clone() FlowState { return s }

// QuizState tracks progress through the quiz script.
type QuizState struct {
	Index int `json:"index"` // next question to answer, 0..questionCount
	Score int `json:"score"`
}

// Mode implements FlowState.
func (*QuizState) Mode() Mode { return ModeQuiz }

func (s *QuizState) clone() FlowState {
	c := *s
	return &c
}

// GuidedAnswer is one collected field of a guided-input record.
type GuidedAnswer struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// GuidedState tracks progress through the guided-input script.
type GuidedState struct {
	Step   int            `json:"step"` // next field to collect, 0..fieldCount
	Record []GuidedAnswer `json:"record,omitempty"`
}

// Mode implements FlowState.
func (*GuidedState) Mode() Mode { return ModeGuidedInput }

func (s *GuidedState) clone() FlowState {
	c := GuidedState{Step: s.Step}
	if s.Record != nil {
		c.Record = append([]GuidedAnswer(nil), s.Record...)
	}
	return &c
}

// Session is the per-user record of quiz and guided-input progress.
type Session struct {
	UserID    string    `json:"user_id"`
	State     FlowState `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a session in its initial Idle state.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		State:     IdleState{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.State != nil {
		c.State = s.State.clone()
	}
	return &c
}

// Reset returns the session to its initial Idle state.
func (s *Session) Reset() {
	s.State = IdleState{}
}

// Mode returns the session's current mode.
func (s Session) Mode() Mode {
	if s.State == nil {
		return ModeIdle
	}
	return s.State.Mode()
}

// Quiz returns the quiz state, or nil when the session is not in Quiz mode.
func (s Session) Quiz() *QuizState {
	q, _ := s.State.(*QuizState)
	return q
}

// Guided returns the guided-input state, or nil when the session is not in GuidedInput mode.
func (s Session) Guided() *GuidedState {
	g, _ := s.State.(*GuidedState)
	return g
}

// QuizIndex returns the current question index, 0 outside Quiz mode.
func (s Session) QuizIndex() int {
	if q := s.Quiz(); q != nil {
		return q.Index
	}
	return 0
}

// Score returns the accumulated quiz score, 0 outside Quiz mode.
func (s Session) Score() int {
	if q := s.Quiz(); q != nil {
		return q.Score
	}
	return 0
}

// GuidedStep returns the current guided field index, 0 outside GuidedInput mode.
func (s Session) GuidedStep() int {
	if g := s.Guided(); g != nil {
		return g.Step
	}
	return 0
}

// GuidedRecord returns a copy of the collected guided answers.
func (s Session) GuidedRecord() []GuidedAnswer {
	if g := s.Guided(); g != nil && len(g.Record) > 0 {
		return append([]GuidedAnswer(nil), g.Record...)
	}
	return nil
}
