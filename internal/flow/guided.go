package flow

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// ErrNotInGuidedInput is returned when text arrives outside the guided flow.
var ErrNotInGuidedInput = errors.New("session is not in guided-input mode")

// Submission is the completed guided record ready for the completion service.
type Submission struct {
	Record       []models.GuidedAnswer
	Text         string
	SystemPrompt string
}

// GuidedStep is what the guided flow wants emitted next: a prompt or a submission.
type GuidedStep struct {
	Step       int
	Field      *models.GuidedField
	Submission *Submission
}

// GuidedFlow collects free-text answers to the guided field script.
type GuidedFlow struct {
	script *Script
}

// NewGuidedFlow creates a guided-input flow over script.
func NewGuidedFlow(script *Script) *GuidedFlow {
	return &GuidedFlow{script: script}
}

// FieldCount returns the number of guided fields.
func (gf *GuidedFlow) FieldCount() int {
	return len(gf.script.GuidedFields)
}

// Begin (re)starts guided collection for s, discarding any other flow state.
func (gf *GuidedFlow) Begin(s *models.Session) GuidedStep {
	s.State = &models.GuidedState{}
	slog.Debug("GuidedFlow begin", "userID", s.UserID, "fields", gf.FieldCount())
	field := gf.script.GuidedFields[0]
	return GuidedStep{Step: 0, Field: &field}
}

// SubmitText stores text under the current field and advances. After the last
// field the session is reset and the step carries the submission.
func (gf *GuidedFlow) SubmitText(s *models.Session, text string) (GuidedStep, error) {
	g := s.Guided()
	if g == nil || g.Step >= gf.FieldCount() {
		return GuidedStep{}, ErrNotInGuidedInput
	}

	field := gf.script.GuidedFields[g.Step]
	g.Record = append(g.Record, models.GuidedAnswer{Field: field.Name, Text: text})
	g.Step++
	slog.Debug("GuidedFlow field collected", "userID", s.UserID, "field", field.Name, "step", g.Step)

	if g.Step < gf.FieldCount() {
		next := gf.script.GuidedFields[g.Step]
		return GuidedStep{Step: g.Step, Field: &next}, nil
	}

	sub := &Submission{
		Record:       g.Record,
		Text:         FormatRecord(g.Record),
		SystemPrompt: gf.script.SystemPrompt,
	}
	s.Reset()
	slog.Info("GuidedFlow record complete", "userID", s.UserID, "fields", len(sub.Record))
	return GuidedStep{Step: len(sub.Record), Submission: sub}, nil
}

// FormatRecord renders the record as labeled lines in script order.
func FormatRecord(record []models.GuidedAnswer) string {
	var b strings.Builder
	for i, a := range record {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.Field)
		b.WriteString(": ")
		b.WriteString(a.Text)
	}
	return b.String()
}
