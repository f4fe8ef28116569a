package flow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// Quiz errors. All of them leave the session unchanged.
var (
	ErrNotInQuiz     = errors.New("session is not in quiz mode")
	ErrStaleQuestion = errors.New("choice belongs to a different question")
	ErrUnknownOption = errors.New("unknown option for current question")
)

// QuizSummary describes a finished quiz.
type QuizSummary struct {
	Score      int
	MaxScore   int
	Answered   int
	FinalMedia models.MediaRef
}

// QuizStep is what the quiz wants emitted next: either a question or a summary.
type QuizStep struct {
	Index    int
	Question *models.Question
	Summary  *QuizSummary
}

// Completed reports whether the step ends the quiz.
func (s QuizStep) Completed() bool {
	return s.Summary != nil
}

// Choices renders the step's question options as inline choices.
func (s QuizStep) Choices() []models.Choice {
	if s.Question == nil {
		return nil
	}
	choices := make([]models.Choice, 0, len(s.Question.Options))
	for _, o := range s.Question.Options {
		choices = append(choices, models.Choice{
			Code:  ChoiceCode(s.Index, o.Key),
			Label: fmt.Sprintf("%s) %s", o.Key, o.Text),
		})
	}
	return choices
}

// QuizEngine advances sessions through the question script.
type QuizEngine struct {
	script *Script
}

// NewQuizEngine creates a quiz engine over script.
func NewQuizEngine(script *Script) *QuizEngine {
	return &QuizEngine{script: script}
}

// QuestionCount returns the number of questions in the script.
func (qe *QuizEngine) QuestionCount() int {
	return len(qe.script.Questions)
}

// MaxScore returns the theoretical maximum score.
func (qe *QuizEngine) MaxScore() int {
	return qe.script.MaxScore()
}

// Begin (re)starts the quiz for s, discarding any other flow state.
func (qe *QuizEngine) Begin(s *models.Session) QuizStep {
	q := &models.QuizState{}
	s.State = q
	slog.Debug("QuizEngine begin", "userID", s.UserID, "questions", qe.QuestionCount())
	return qe.next(s, q)
}

// Answer scores optionKey against the question at questionIndex and advances.
func (qe *QuizEngine) Answer(s *models.Session, questionIndex int, optionKey string) (QuizStep, error) {
	q := s.Quiz()
	if q == nil {
		return QuizStep{}, ErrNotInQuiz
	}
	if q.Index >= qe.QuestionCount() {
		return QuizStep{}, ErrNotInQuiz
	}
	if questionIndex != q.Index {
		return QuizStep{}, fmt.Errorf("%w: got %d, current %d", ErrStaleQuestion, questionIndex, q.Index)
	}
	opt, ok := qe.script.Questions[q.Index].Option(optionKey)
	if !ok {
		return QuizStep{}, fmt.Errorf("%w: %q at question %d", ErrUnknownOption, optionKey, q.Index)
	}

	q.Score += opt.Points
	q.Index++
	slog.Debug("QuizEngine answer recorded", "userID", s.UserID, "option", optionKey, "points", opt.Points, "score", q.Score, "index", q.Index)
	return qe.next(s, q), nil
}

// next returns the question at q.Index, or completes the quiz and resets s.
func (qe *QuizEngine) next(s *models.Session, q *models.QuizState) QuizStep {
	if q.Index < qe.QuestionCount() {
		question := qe.script.Questions[q.Index]
		return QuizStep{Index: q.Index, Question: &question}
	}

	summary := &QuizSummary{
		Score:      q.Score,
		MaxScore:   qe.MaxScore(),
		Answered:   q.Index,
		FinalMedia: qe.script.FinalMedia,
	}
	s.Reset()
	slog.Info("QuizEngine quiz complete", "userID", s.UserID, "score", summary.Score, "max", summary.MaxScore)
	return QuizStep{Index: summary.Answered, Summary: summary}
}
