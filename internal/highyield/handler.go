package highyield

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
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
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	case errors.Is(err, ErrConflict):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[highyield] handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func (h *Handler) Specialties(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Specialties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Specialty serves /high-yield/{specialty} (topic picked with ?topic=) and
// /high-yield/{specialty}/{topic}.
func (h *Handler) Specialty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	topic := vars["topic"]
	if topic == "" {
		topic = r.URL.Query().Get("topic")
	}
	review, err := h.service.Review(r.Context(), vars["specialty"], topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// ── Staff ──────────────────────────────────────────────

func (h *Handler) CreateSpecialty(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	var req models.SpecialtyRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.service.CreateSpecialty(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

func (h *Handler) UpdateSpecialty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid specialty ID"})
		return
	}
	var req models.SpecialtyRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.service.UpdateSpecialty(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (h *Handler) DeleteSpecialty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid specialty ID"})
		return
	}
	if err := h.service.DeleteSpecialty(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Specialty deleted"})
}

func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	specialtyID, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid specialty ID"})
		return
	}
	userID, _ := middleware.UserID(r.Context())
	var req models.TopicRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.CreateTopic(r.Context(), userID, specialtyID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid topic ID"})
		return
	}
	var req models.TopicRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.UpdateTopic(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid topic ID"})
		return
	}
	if err := h.service.DeleteTopic(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Topic deleted"})
}

func (h *Handler) AddSectionImage(w http.ResponseWriter, r *http.Request) {
	topicID, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid topic ID"})
		return
	}
	var req models.SectionImageRequest
	if !decode(w, r, &req) {
		return
	}
	img, err := h.service.AddSectionImage(r.Context(), topicID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (h *Handler) DeleteSectionImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid image ID"})
		return
	}
	if err := h.service.DeleteSectionImage(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
