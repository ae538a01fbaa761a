package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dwkim-hr/intervox/internal/analysis"
	"github.com/dwkim-hr/intervox/internal/buffer"
	"github.com/dwkim-hr/intervox/internal/config"
	"github.com/dwkim-hr/intervox/internal/session"
	"github.com/dwkim-hr/intervox/internal/storage/sqlite"
	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/internal/websocket"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	controller      *session.Controller
	analysisService *analysis.Service
	results         *buffer.Rolling[transcription.Segment]
	segmentStorage  *sqlite.SegmentStorage
	sessionStorage  *sqlite.SessionStorage
	config          *config.Config
	logger          *logger.Logger
	wsServer        *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(controller *session.Controller, analysisService *analysis.Service, results *buffer.Rolling[transcription.Segment], segmentStorage *sqlite.SegmentStorage, sessionStorage *sqlite.SessionStorage, config *config.Config, logger *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		controller:      controller,
		analysisService: analysisService,
		results:         results,
		segmentStorage:  segmentStorage,
		sessionStorage:  sessionStorage,
		config:          config,
		logger:          logger.Named("api-handler"),
		wsServer:        wsServer,
	}
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// respondError writes a JSON error response
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// parsePagination extracts limit/offset query parameters with defaults
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Health returns service health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": h.wsServer.ClientCount(),
		"time":       time.Now().UTC(),
	})
}

// StartSession begins a new recording session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApplicationID string `json:"application_id"`
		InterviewType string `json:"interview_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ApplicationID == "" {
		h.respondError(w, http.StatusBadRequest, "application_id is required")
		return
	}
	if req.InterviewType == "" {
		req.InterviewType = "general"
	}

	sessionID, err := h.controller.Start(r.Context(), req.ApplicationID, req.InterviewType)
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			h.respondError(w, http.StatusConflict, "a recording session is already active")
			return
		}
		_, reason := h.controller.State()
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  err.Error(),
			"reason": string(reason),
		})
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]string{
		"session_id": sessionID,
		"state":      string(session.StateRecording),
	})
}

// StopSession ends the active recording session and uploads the recording
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := h.controller.SessionID()
	if err := h.controller.Stop(r.Context()); err != nil {
		h.respondJSON(w, http.StatusBadGateway, map[string]any{
			"session_id":     sessionID,
			"error":          err.Error(),
			"pending_upload": h.controller.HasPendingUpload(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"state":      string(session.StateIdle),
	})
}

// SessionState returns the current controller state, the elapsed recording
// time and the number of segments transcribed for this session
func (h *Handler) SessionState(w http.ResponseWriter, r *http.Request) {
	state, reason := h.controller.State()
	sessionID := h.controller.SessionID()

	segmentCount := 0
	if sessionID != "" {
		n, err := h.segmentStorage.CountSegmentsBySession(r.Context(), sessionID)
		if err != nil {
			h.logger.Error("Failed to count session segments", logger.Error(err))
		} else {
			segmentCount = n
		}
	}

	resp := map[string]any{
		"session_id":      sessionID,
		"state":           string(state),
		"elapsed_seconds": int(h.controller.Elapsed().Seconds()),
		"segment_count":   segmentCount,
		"pending_upload":  h.controller.HasPendingUpload(),
	}
	if reason != "" {
		resp["error_reason"] = string(reason)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// RetryUpload re-attempts delivery of a retained recording
func (h *Handler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.RetryUpload(r.Context()); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			h.respondError(w, http.StatusConflict, "cannot retry while a session is active")
			return
		}
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "uploaded"})
}

// DiscardUpload drops the retained recording from a failed upload
func (h *Handler) DiscardUpload(w http.ResponseWriter, r *http.Request) {
	h.controller.DiscardPending(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

// GetSessions returns stored recording sessions
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	records, err := h.sessionStorage.GetSessions(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to query sessions", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query sessions")
		return
	}
	if records == nil {
		records = []*sqlite.SessionRecord{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// GetSession returns one stored session by ID
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.sessionStorage.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, record)
}

// GetLiveTranscripts returns the rolling result buffer. By default results
// are in arrival order (newest first); ?order=capture re-sorts by capture
// time.
func (h *Handler) GetLiveTranscripts(w http.ResponseWriter, r *http.Request) {
	var items []transcription.Segment
	if r.URL.Query().Get("order") == "capture" {
		items = h.results.SortedByCapture(func(s transcription.Segment) time.Time { return s.CapturedAt })
	} else {
		items = h.results.Items()
	}
	if items == nil {
		items = []transcription.Segment{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"segments": items,
		"capacity": h.results.Capacity(),
	})
}

// RemoveLiveTranscript drops one segment from the rolling buffer by ID. The
// persisted copy is untouched.
func (h *Handler) RemoveLiveTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.results.Remove(func(s transcription.Segment) bool { return s.ID == id }) {
		h.respondError(w, http.StatusNotFound, "segment not in live buffer")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ClearLiveTranscripts empties the rolling buffer
func (h *Handler) ClearLiveTranscripts(w http.ResponseWriter, r *http.Request) {
	h.results.Clear()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GetTranscriptHistory returns persisted segments, optionally filtered by
// session or by a capture-time window (start/end as RFC3339)
func (h *Handler) GetTranscriptHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var (
		records []*transcription.Segment
		err     error
	)
	sessionID := r.URL.Query().Get("session_id")
	startStr, endStr := r.URL.Query().Get("start"), r.URL.Query().Get("end")
	switch {
	case sessionID != "":
		records, err = h.segmentStorage.GetSegmentsBySession(r.Context(), sessionID, limit, offset)
	case startStr != "" && endStr != "":
		start, perr := time.Parse(time.RFC3339, startStr)
		if perr != nil {
			h.respondError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		end, perr := time.Parse(time.RFC3339, endStr)
		if perr != nil {
			h.respondError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		records, err = h.segmentStorage.GetSegmentsByTimeRange(r.Context(), start, end, limit, offset)
	default:
		records, err = h.segmentStorage.GetSegments(r.Context(), limit, offset)
	}
	if err != nil {
		h.logger.Error("Failed to query segments", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query segments")
		return
	}
	if records == nil {
		records = []*transcription.Segment{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"segments": records})
}

// CheckSimilarity fetches the resume-to-transcript similarity score for an
// application. Concurrent requests for the same application share one
// backend call.
func (h *Handler) CheckSimilarity(w http.ResponseWriter, r *http.Request) {
	if h.analysisService == nil {
		h.respondError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}

	applicationID := chi.URLParam(r, "id")
	score, err := h.analysisService.CheckSimilarity(r.Context(), applicationID)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"application_id": applicationID,
		"similarity":     score,
	})
}

// SummarizeTranscript produces an AI summary for a stored session
func (h *Handler) SummarizeTranscript(w http.ResponseWriter, r *http.Request) {
	if h.analysisService == nil {
		h.respondError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}

	sessionID := chi.URLParam(r, "id")
	records, err := h.segmentStorage.GetSegmentsBySession(r.Context(), sessionID, 500, 0)
	if err != nil {
		h.logger.Error("Failed to query segments", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query segments")
		return
	}

	segments := make([]transcription.Segment, 0, len(records))
	for _, rec := range records {
		segments = append(segments, *rec)
	}

	summary, err := h.analysisService.SummarizeTranscript(r.Context(), sessionID, segments)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"summary":    summary,
	})
}
