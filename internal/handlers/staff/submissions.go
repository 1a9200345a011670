package staff

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/handlers"
)

func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	if !parseUpload(w, r) {
		return
	}

	assignmentID, err := uuid.Parse(r.FormValue("assignment_id"))
	if err != nil {
		handlers.ResponseError(w, "invalid assignment id", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.ResponseError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	created, err := h.submissions.Create(r.Context(), assignmentID, r.FormValue("submitter"), header.Filename, file)
	if err != nil {
		h.logger.Error("Failed to create submission", "assignmentId", assignmentID, "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusCreated, created)
}

// parseUpload reads a size-capped multipart body and writes the error response itself
func parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.ResponseError(w, "upload too large", http.StatusRequestEntityTooLarge)
			return false
		}
		handlers.ResponseError(w, "invalid multipart form", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) ResubmitFile(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid submission id", http.StatusBadRequest)
		return
	}
	if !parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.ResponseError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	updated, err := h.submissions.Resubmit(r.Context(), id, header.Filename, file)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, updated)
}

// transition adapts a lifecycle operation to a POST handler
func (h *Handler) transition(op func(ctx context.Context, id uuid.UUID) (*domain.Submission, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := handlers.PathUUID(r, "id")
		if !ok {
			handlers.ResponseError(w, "invalid submission id", http.StatusBadRequest)
			return
		}

		updated, err := op(r.Context(), id)
		if err != nil {
			handlers.ResponseServiceError(w, err)
			return
		}

		staff, _ := handlers.AuthPayloadFrom(r.Context())
		h.logger.Info("Submission state changed", "submissionId", id, "state", updated.State, "by", staff.Username)
		handlers.ResponseWithJson(w, http.StatusOK, updated)
	}
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid submission id", http.StatusBadRequest)
		return
	}

	details, err := h.submissions.Get(r.Context(), id)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, details)
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter domain.SubmissionFilter

	if raw := query.Get("assignment"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handlers.ResponseError(w, "invalid assignment id", http.StatusBadRequest)
			return
		}
		filter.AssignmentID = &id
	}
	for _, raw := range query["state"] {
		for _, code := range strings.Split(raw, ",") {
			if code = strings.TrimSpace(code); code != "" {
				filter.States = append(filter.States, domain.SubmissionState(code))
			}
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			handlers.ResponseError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	submissions, err := h.submissions.List(r.Context(), filter)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string]interface{}{"submissions": submissions})
}
