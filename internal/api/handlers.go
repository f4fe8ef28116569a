package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// sessionStatsHandler returns live session counts per mode (GET /sessions/stats).
func (s *Server) sessionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Session store not available"))
		return
	}
	stats := s.sessions.Stats()
	byMode := make(map[string]int, len(stats.ByMode))
	for mode, n := range stats.ByMode {
		byMode[string(mode)] = n
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"total":   stats.Total,
		"by_mode": byMode,
	}))
}

// sessionView is the admin representation of one live session.
type sessionView struct {
	UserID     string    `json:"user_id"`
	Mode       string    `json:"mode"`
	QuizIndex  int       `json:"quiz_index"`
	Score      int       `json:"score"`
	GuidedStep int       `json:"guided_step"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// sessionsHandler lists live sessions (GET /sessions).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Session store not available"))
		return
	}
	snap := s.sessions.Snapshot()
	views := make([]sessionView, 0, len(snap))
	for i := range snap {
		sess := &snap[i]
		views = append(views, sessionView{
			UserID:     sess.UserID,
			Mode:       string(sess.Mode()),
			QuizIndex:  sess.QuizIndex(),
			Score:      sess.Score(),
			GuidedStep: sess.GuidedStep(),
			UpdatedAt:  sess.UpdatedAt,
		})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(views))
}

// resultsHandler lists quiz results (GET /results?user=&limit=).
func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Audit store not available"))
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	results, err := s.audit.GetQuizResults(r.URL.Query().Get("user"), limit)
	if err != nil {
		slog.Error("resultsHandler failed to fetch quiz results", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch quiz results"))
		return
	}
	if results == nil {
		results = []models.QuizResult{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}

// coachingHandler lists coaching records (GET /coaching?user=&limit=).
func (s *Server) coachingHandler(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Audit store not available"))
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records, err := s.audit.GetCoachingRecords(r.URL.Query().Get("user"), limit)
	if err != nil {
		slog.Error("coachingHandler failed to fetch coaching records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch coaching records"))
		return
	}
	if records == nil {
		records = []models.CoachingRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// parseLimit reads the optional limit query parameter, writing a 400 on bad input.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}
