// Package testutil provides common test helpers for HandCoach tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// AuditWriter is the write side of the audit store.
type AuditWriter interface {
	AddQuizResult(r models.QuizResult) error
	AddCoachingRecord(r models.CoachingRecord) error
}

// Reporter is the part of testing.TB the assertions need.
type Reporter interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t Reporter, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeAPIResponse decodes the standard response envelope, storing the result
// payload into result when it is non-nil.
func DecodeAPIResponse(t testing.TB, rec *httptest.ResponseRecorder, result interface{}) models.APIResponse {
	t.Helper()
	var envelope struct {
		models.APIResponse
		Raw json.RawMessage `json:"result,omitempty"`
	}
	MustUnmarshalJSON(t, rec.Body.Bytes(), &envelope)
	if result != nil && len(envelope.Raw) > 0 {
		MustUnmarshalJSON(t, envelope.Raw, result)
	}
	return models.APIResponse{Status: envelope.Status, Message: envelope.Message}
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON %q: %v", data, err)
	}
}

// WriteFile creates dir/rel with content, making parent directories, and
// returns the full path.
func WriteFile(t testing.TB, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// SeedAuditData records three quiz results (two for user "42", newest scoring
// 28) and one coaching record for "42" whose reply is "Fold".
func SeedAuditData(t testing.TB, w AuditWriter) {
	t.Helper()
	now := time.Now().UTC()
	results := []models.QuizResult{
		{UserID: "42", Score: 35, MaxScore: 40, CompletedAt: now.Add(-time.Minute)},
		{UserID: "42", Score: 28, MaxScore: 40, CompletedAt: now},
		{UserID: "7", Score: 40, MaxScore: 40, CompletedAt: now},
	}
	for i, r := range results {
		if err := w.AddQuizResult(r); err != nil {
			t.Fatalf("failed to seed quiz result %d: %v", i, err)
		}
	}
	record := models.CoachingRecord{UserID: "42", Request: "Position: BTN", Reply: "Fold", CreatedAt: now}
	if err := w.AddCoachingRecord(record); err != nil {
		t.Fatalf("failed to seed coaching record: %v", err)
	}
}
