package models

import (
	"errors"
	"testing"
	"time"
)

func sampleQuestion() Question {
	return Question{
		Stage:  "Flop",
		Prompt: "What's your best move here?",
		Options: []Option{
			{Key: "A", Text: "Check", Points: 6},
			{Key: "B", Text: "Bet 4.2", Points: 8},
			{Key: "C", Text: "Bet 9.35", Points: 10},
		},
	}
}

func TestQuestionOptionLookup(t *testing.T) {
	q := sampleQuestion()
	opt, ok := q.Option("C")
	if !ok || opt.Points != 10 {
		t.Fatalf("expected option C worth 10, got %+v (ok=%v)", opt, ok)
	}
	if _, ok := q.Option("Z"); ok {
		t.Error("expected unknown key to be missing")
	}
	if best := q.BestPoints(); best != 10 {
		t.Errorf("expected best points 10, got %d", best)
	}
}

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(q *Question)
		wantErr error
	}{
		{"valid", func(q *Question) {}, nil},
		{"empty prompt", func(q *Question) { q.Prompt = "  " }, ErrEmptyPrompt},
		{"no options", func(q *Question) { q.Options = nil }, ErrMissingOptions},
		{"empty key", func(q *Question) { q.Options[0].Key = "" }, ErrEmptyOptionKey},
		{"colon in key", func(q *Question) { q.Options[0].Key = "A:1" }, ErrInvalidOptionKey},
		{"negative points", func(q *Question) { q.Options[1].Points = -1 }, ErrNegativePoints},
		{"duplicate key", func(q *Question) { q.Options[2].Key = "A" }, ErrDuplicateOptionKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := sampleQuestion()
			tt.mutate(&q)
			err := q.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSessionAccessorsFollowMode(t *testing.T) {
	s := NewSession("42", time.Now())
	if s.Mode() != ModeIdle || s.QuizIndex() != 0 || s.Score() != 0 || s.GuidedStep() != 0 {
		t.Fatalf("new session not in initial state: %+v", s)
	}

	s.State = &QuizState{Index: 2, Score: 15}
	if s.Mode() != ModeQuiz || s.QuizIndex() != 2 || s.Score() != 15 {
		t.Errorf("quiz accessors wrong: mode=%s index=%d score=%d", s.Mode(), s.QuizIndex(), s.Score())
	}
	if s.Guided() != nil || s.GuidedStep() != 0 {
		t.Error("guided state visible while in quiz mode")
	}

	s.State = &GuidedState{Step: 1, Record: []GuidedAnswer{{Field: "Position", Text: "BTN"}}}
	if s.Mode() != ModeGuidedInput || s.QuizIndex() != 0 || s.Score() != 0 {
		t.Error("quiz progress visible while in guided mode")
	}
	if rec := s.GuidedRecord(); len(rec) != 1 || rec[0].Text != "BTN" {
		t.Errorf("unexpected guided record: %+v", rec)
	}

	s.Reset()
	if s.Mode() != ModeIdle || s.GuidedRecord() != nil {
		t.Error("reset did not return to idle")
	}
}

// snapshotOf mirrors how session stores hand out copies by value.
func snapshotOf(s *Session) Session { return *s.Clone() }

func TestSessionAccessorsOnValueCopy(t *testing.T) {
	s := NewSession("42", time.Now())
	s.State = &QuizState{Index: 3, Score: 28}

	if snapshotOf(s).Mode() != ModeQuiz || snapshotOf(s).QuizIndex() != 3 || snapshotOf(s).Score() != 28 {
		t.Errorf("quiz accessors wrong on value copy: %+v", snapshotOf(s))
	}

	s.State = &GuidedState{Step: 2, Record: []GuidedAnswer{{Field: "Position", Text: "BTN"}}}
	if snapshotOf(s).Mode() != ModeGuidedInput || snapshotOf(s).GuidedStep() != 2 || len(snapshotOf(s).GuidedRecord()) != 1 {
		t.Errorf("guided accessors wrong on value copy: %+v", snapshotOf(s))
	}

	if (Session{}).Mode() != ModeIdle || (Session{}).Quiz() != nil || (Session{}).Guided() != nil {
		t.Error("zero session should read as idle")
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := NewSession("7", time.Now())
	s.State = &GuidedState{Step: 1, Record: []GuidedAnswer{{Field: "Position", Text: "BTN"}}}

	c := s.Clone()
	c.Guided().Record[0].Text = "SB"
	c.Guided().Step = 2

	if s.Guided().Record[0].Text != "BTN" || s.GuidedStep() != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestMediaRefIsZero(t *testing.T) {
	if !MediaRef("").IsZero() || !MediaRef("  ").IsZero() {
		t.Error("blank media ref should be zero")
	}
	if MediaRef("videos/a.mp4").IsZero() {
		t.Error("non-blank media ref should not be zero")
	}
}
