package cases

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/neuro-mcq/backend/internal/mcqs"
	"github.com/neuro-mcq/backend/internal/middleware"
	"github.com/neuro-mcq/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Case session not found"})
	case errors.Is(err, mcqs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "MCQ not found"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Not your case session"})
	case errors.Is(err, ErrInvalidState):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[cases] handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

// ConvertToCase handles POST /mcqs/{id}/convert-to-case. A new session is
// 202 Accepted; an existing one is returned with 200.
func (h *Handler) ConvertToCase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	mcqID, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}

	sess, created, err := h.service.StartConversion(r.Context(), userID, mcqID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sess)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	list, err := h.service.Sessions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session ID"})
		return
	}
	sess, err := h.service.Session(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session ID"})
		return
	}
	if err := h.service.DeleteSession(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RetrySession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session ID"})
		return
	}
	sess, err := h.service.Retry(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// ── Staff ───────────────────────────────────────────────

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	mcqID, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	if err := h.service.ClearCache(r.Context(), mcqID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true, "mcq_id": mcqID})
}

func (h *Handler) ClearAllCaches(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClearAllCaches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handler) Tracking(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Tracking(r.Context(), mux.Vars(r)["tracking_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.RecentEvents(r.Context(), intQueryParam(r.URL.Query(), "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) IntegrityCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.IntegrityCheck(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
