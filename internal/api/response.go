package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// fallbackErrorResponse is written when a response body cannot be encoded.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("api: cannot marshal fallback error response: %v", err))
	}
}

// writeJSONResponse encodes body before touching headers so a marshal failure
// still yields a well-formed 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("API failed to marshal response", "status", statusCode, "error", err)
		data, statusCode = fallbackErrorResponse, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Debug("API failed to write response", "error", err)
	}
}
