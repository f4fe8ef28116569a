// Package flow implements the quiz and guided-input state machines and the
// per-user session store they operate on.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// ErrMalformedChoice is returned when a choice code cannot be parsed.
var ErrMalformedChoice = errors.New("malformed choice code")

// Script is the immutable content driving both flows. It is safe for
// concurrent reads once constructed.
type Script struct {
	Questions    []models.Question    `json:"questions"`
	FinalMedia   models.MediaRef      `json:"final_media,omitempty"`
	GuidedFields []models.GuidedField `json:"guided_fields"`
	SystemPrompt string               `json:"system_prompt"`
}

// Validate checks every question and guided field. An empty question list is
// allowed; an empty guided field list is not.
func (s *Script) Validate() error {
	for i, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d (%s): %w", i, q.Stage, err)
		}
	}
	if len(s.GuidedFields) == 0 {
		return models.ErrMissingGuidedFields
	}
	seen := make(map[string]bool, len(s.GuidedFields))
	for i, f := range s.GuidedFields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("guided field %d: %w", i, models.ErrEmptyFieldName)
		}
		if strings.TrimSpace(f.Prompt) == "" {
			return fmt.Errorf("guided field %d (%s): %w", i, f.Name, models.ErrEmptyPrompt)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s", models.ErrDuplicateFieldName, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// MaxScore is the theoretical maximum: the sum of the best option per question.
func (s *Script) MaxScore() int {
	total := 0
	for _, q := range s.Questions {
		total += q.BestPoints()
	}
	return total
}

// WithMediaDir returns a copy of the script whose relative media paths are
// resolved against dir.
func (s *Script) WithMediaDir(dir string) *Script {
	if dir == "" {
		return s
	}
	resolve := func(m models.MediaRef) models.MediaRef {
		if m.IsZero() || filepath.IsAbs(string(m)) {
			return m
		}
		return models.MediaRef(filepath.Join(dir, string(m)))
	}
	c := *s
	c.Questions = make([]models.Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Media = resolve(q.Media)
		c.Questions[i] = q
	}
	c.FinalMedia = resolve(s.FinalMedia)
	return &c
}

// LoadScript reads a JSON script from path and validates it.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script %s: %w", path, err)
	}
	slog.Debug("Script loaded", "path", path, "questions", len(s.Questions), "guidedFields", len(s.GuidedFields))
	return &s, nil
}

// ChoiceCode encodes a question index and option key into a button payload.
func ChoiceCode(questionIndex int, key string) string {
	return strconv.Itoa(questionIndex) + ":" + key
}

// ParseChoiceCode decodes a payload produced by ChoiceCode.
func ParseChoiceCode(code string) (int, string, error) {
	idx, key, ok := strings.Cut(code, ":")
	if !ok || key == "" {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedChoice, code)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedChoice, code)
	}
	return n, key, nil
}
