package mcqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/middleware"
	"github.com/neuro-mcq/backend/internal/models"
)

const maxImportBytes = 64 << 20

type Handler struct {
	service *Service
	maint   *Maintenance
}

func NewHandler(service *Service, maint *Maintenance) *Handler {
	return &Handler{service: service, maint: maint}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error, what string) {
	var verr *importer.ValidationError
	var rerr *RevisionError
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: what + " not found"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: verr.Error()})
	case errors.As(err, &rerr):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: rerr.Error()})
	case errors.Is(err, ErrNoLLM):
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "AI revision is not configured"})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAnswer), errors.Is(err, importer.ErrInvalidJSON):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[handler] %s error: %v", what, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

// ── Browsing ───────────────────────────────────────────

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := models.MCQFilter{
		Subspecialty: query.Get("subspecialty"),
		ExamType:     models.ExamType(query.Get("exam_type")),
		ExamYear:     query.Get("exam_year"),
		Query:        strings.TrimSpace(query.Get("q")),
		Page:         intQueryParam(query, "page", 1),
		PageSize:     intQueryParam(query, "page_size", defaultPageSize),
	}
	if s := query.Get("has_explanation"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "has_explanation must be true or false"})
			return
		}
		f.HasExplanation = &v
	}
	f.UserID, _ = middleware.UserID(r.Context())

	resp, err := h.service.List(r.Context(), f)
	if err != nil {
		writeError(w, err, "MCQ list")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Subspecialties(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Subspecialties(r.Context())
	if err != nil {
		writeError(w, err, "Subspecialties")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, _ := middleware.UserID(r.Context())

	detail, err := h.service.Detail(r.Context(), userID, id)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	query := r.URL.Query()
	mcqs, err := h.service.Random(r.Context(), userID, query.Get("subspecialty"), intQueryParam(query, "count", defaultExamSize))
	if err != nil {
		writeError(w, err, "Exam")
		return
	}
	writeJSON(w, http.StatusOK, mcqs)
}

// ── Answering ──────────────────────────────────────────

func (h *Handler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CheckAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.CheckAnswer(r.Context(), userID, id, req.Selected)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SubmitExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	var req models.SubmitExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.SubmitExam(r.Context(), userID, req.Answers)
	if err != nil {
		writeError(w, err, "Exam")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) WeaknessTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	mcqs, err := h.service.WeaknessTest(r.Context(), userID, intQueryParam(r.URL.Query(), "limit", weaknessLimit))
	if err != nil {
		writeError(w, err, "Weakness test")
		return
	}
	writeJSON(w, http.StatusOK, mcqs)
}

// ── Bookmarks, notes, hidden ───────────────────────────

func (h *Handler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	bookmarked, err := h.service.ToggleBookmark(r.Context(), userID, id)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": bookmarked})
}

func (h *Handler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	mcqs, err := h.service.Bookmarks(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, mcqs)
}

func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	var req models.SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	note, err := h.service.SaveNote(r.Context(), userID, id, req.Content)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	if err := h.service.DeleteNote(r.Context(), userID, id); err != nil {
		writeError(w, err, "Note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	if err := h.service.SetHidden(r.Context(), userID, id, hidden); err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hidden": hidden})
}

func (h *Handler) Hide(w http.ResponseWriter, r *http.Request)   { h.setHidden(w, r, true) }
func (h *Handler) Unhide(w http.ResponseWriter, r *http.Request) { h.setHidden(w, r, false) }

func (h *Handler) Hidden(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	mcqs, err := h.service.Hidden(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Hidden MCQs")
		return
	}
	writeJSON(w, http.StatusOK, mcqs)
}

// ── Reports ────────────────────────────────────────────

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	var req models.CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	report, err := h.service.Report(r.Context(), userID, id, req)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reports, err := h.service.Reports(r.Context(),
		models.ReportStatus(query.Get("status")),
		intQueryParam(query, "limit", defaultPageSize),
		intQueryParam(query, "offset", 0))
	if err != nil {
		writeError(w, err, "Reports")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid report ID"})
		return
	}
	var req models.ResolveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	report, err := h.service.ResolveReport(r.Context(), id, req)
	if err != nil {
		writeError(w, err, "Report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ── Staff updates ──────────────────────────────────────

// staffUpdate decodes a request body of type T and applies it with fn.
func staffUpdate[T any](w http.ResponseWriter, r *http.Request, fn func(id int64, req T) (*models.MCQ, error)) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	m, err := fn(id, req)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	staffUpdate(w, r, func(id int64, req models.UpdateQuestionRequest) (*models.MCQ, error) {
		return h.service.UpdateQuestion(r.Context(), id, req)
	})
}

func (h *Handler) UpdateOptions(w http.ResponseWriter, r *http.Request) {
	staffUpdate(w, r, func(id int64, req models.UpdateOptionsRequest) (*models.MCQ, error) {
		return h.service.UpdateOptions(r.Context(), id, req)
	})
}

func (h *Handler) UpdateExplanation(w http.ResponseWriter, r *http.Request) {
	staffUpdate(w, r, func(id int64, req models.UpdateExplanationRequest) (*models.MCQ, error) {
		return h.service.UpdateExplanation(r.Context(), id, req)
	})
}

func (h *Handler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	staffUpdate(w, r, func(id int64, req models.UpdateImageRequest) (*models.MCQ, error) {
		return h.service.UpdateImage(r.Context(), id, req)
	})
}

func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	staffUpdate(w, r, func(id int64, req models.UpdateMetadataRequest) (*models.MCQ, error) {
		return h.service.UpdateMetadata(r.Context(), id, req)
	})
}

type reviseFunc func(ctx context.Context, id int64, req models.ReviseRequest) (*models.RevisionResult, error)

// revise serves the model-assisted revision endpoints. An empty body asks for
// a preview with default mode and no instructions.
func revise(w http.ResponseWriter, r *http.Request, fn reviseFunc) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	var req models.ReviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	res, err := fn(r.Context(), id, req)
	if err != nil {
		writeError(w, err, "MCQ")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ReviseQuestion(w http.ResponseWriter, r *http.Request) {
	revise(w, r, h.service.ReviseQuestion)
}

func (h *Handler) ReviseOptions(w http.ResponseWriter, r *http.Request) {
	revise(w, r, h.service.ReviseOptions)
}

func (h *Handler) ReviseExplanation(w http.ResponseWriter, r *http.Request) {
	revise(w, r, h.service.ReviseExplanation)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid MCQ ID"})
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err, "MCQ")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Export/Import ──────────────────────────────────────

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	subspecialty := query.Get("subspecialty")

	switch query.Get("format") {
	case "", "json":
		env, err := h.service.Export(r.Context(), subspecialty)
		if err != nil {
			writeError(w, err, "Export")
			return
		}
		writeJSON(w, http.StatusOK, env)
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(subspecialty)))
		if err := h.service.ExportPDF(r.Context(), w, subspecialty); err != nil {
			log.Printf("[handler] PDF export error: %v", err)
		}
	default:
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "format must be 'json' or 'pdf'"})
	}
}

func exportFilename(subspecialty string) string {
	name := "mcqs"
	if subspecialty != "" {
		name += "-" + strings.ToLower(strings.NewReplacer("/", "-", " ", "-").Replace(subspecialty))
	}
	return name + ".pdf"
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Import payload too large"})
		return
	}

	query := r.URL.Query()
	var src *importer.Source
	if query.Get("subspecialty") != "" || query.Get("exam_type") != "" || query.Get("exam_year") != "" {
		src = &importer.Source{
			Path:         "api-import",
			Subspecialty: query.Get("subspecialty"),
			ExamType:     query.Get("exam_type"),
			ExamYear:     query.Get("exam_year"),
		}
	}

	result, err := h.service.Import(r.Context(), data, src)
	if err != nil {
		writeError(w, err, "Import")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Placeholders lists MCQs whose explanation is missing or a placeholder.
func (h *Handler) Placeholders(w http.ResponseWriter, r *http.Request) {
	report, err := h.maint.PlaceholderReport(r.Context())
	if err != nil {
		writeError(w, err, "Placeholder report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	resp, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Dashboard")
		return
	}
	writeJSON(w, http.StatusOK, resp)
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
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
