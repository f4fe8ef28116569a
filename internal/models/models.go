// Package models defines the core data structures for HandCoach.
//
// It includes the quiz and guided-input script types, per-user sessions, inbound
// events and audit records, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// MediaRef identifies a media item (a local file path) attached to a step.
type MediaRef string

// IsZero reports whether no media is attached.
func (m MediaRef) IsZero() bool {
	return strings.TrimSpace(string(m)) == ""
}

// Validation constants for script input
const (
	// MaxOptionKeyLength defines the maximum allowed length for an option key
	MaxOptionKeyLength = 8
	// MaxPromptLength defines the maximum allowed length for a question or field prompt
	MaxPromptLength = 4096
)

// Error variables for script validation
var (
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
	ErrPromptTooLong       = errors.New("prompt exceeds maximum length")
	ErrMissingOptions      = errors.New("question must have at least one option")
	ErrEmptyOptionKey      = errors.New("option key cannot be empty")
	ErrOptionKeyTooLong    = errors.New("option key exceeds maximum length")
	ErrInvalidOptionKey    = errors.New("option key may not contain ':' or whitespace")
	ErrDuplicateOptionKey  = errors.New("duplicate option key")
	ErrNegativePoints      = errors.New("option points cannot be negative")
	ErrMissingGuidedFields = errors.New("guided script must have at least one field")
	ErrEmptyFieldName      = errors.New("guided field name cannot be empty")
	ErrDuplicateFieldName  = errors.New("duplicate guided field name")
)

// Option is a selectable answer to a Question.
type Option struct {
	Key    string `json:"key"`    // short letter code, e.g. "A"
	Text   string `json:"text"`   // display text
	Points int    `json:"points"` // score awarded when chosen
}

// Question is one immutable step of the quiz script.
type Question struct {
	Stage   string   `json:"stage"`
	Prompt  string   `json:"prompt"`
	Media   MediaRef `json:"media,omitempty"`
	Options []Option `json:"options"`
}

// Option looks up an option by key.
func (q Question) Option(key string) (Option, bool) {
	for _, o := range q.Options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// BestPoints returns the highest point value among the question's options.
func (q Question) BestPoints() int {
	best := 0
	for _, o := range q.Options {
		if o.Points > best {
			best = o.Points
		}
	}
	return best
}

// Validate checks the question for structural problems.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(q.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if len(q.Options) == 0 {
		return ErrMissingOptions
	}
	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		switch {
		case o.Key == "":
			return ErrEmptyOptionKey
		case len(o.Key) > MaxOptionKeyLength:
			return ErrOptionKeyTooLong
		case strings.ContainsAny(o.Key, ": \t\n"):
			return ErrInvalidOptionKey
		case o.Points < 0:
			return fmt.Errorf("%w: option %s", ErrNegativePoints, o.Key)
		case seen[o.Key]:
			return fmt.Errorf("%w: %s", ErrDuplicateOptionKey, o.Key)
		}
		seen[o.Key] = true
	}
	return nil
}

// GuidedField is one prompt of the guided-input script.
type GuidedField struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Choice is an inline, selectable button keyed by an opaque code.
type Choice struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// SendOptions carries optional keyboard markup for an outbound text.
// Choices and ReplyKeyboard are mutually exclusive; Choices wins if both are set.
type SendOptions struct {
	Choices       []Choice   `json:"choices,omitempty"`
	ReplyKeyboard [][]string `json:"reply_keyboard,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
