package staff

import (
	"encoding/json"
	"net/http"

	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/handlers"
)

func (h *Handler) UpsertAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid assignment id", http.StatusBadRequest)
		return
	}

	var req UpsertAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		handlers.ResponseError(w, "invalid request", http.StatusBadRequest)
		return
	}

	view, err := h.assignments.Upsert(r.Context(), &domain.Assignment{
		ID:             id,
		Title:          req.Title,
		CompileTest:    req.CompileTest,
		ValidityScript: req.ValidityScript,
		FullScript:     req.FullScript,
		TestTimeout:    req.TestTimeout,
	})
	if err != nil {
		h.logger.Error("Failed to save assignment", "assignmentId", id, "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, view)
}

func (h *Handler) SetAssignmentMachines(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid assignment id", http.StatusBadRequest)
		return
	}

	var req SetMachinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.ResponseError(w, "invalid request", http.StatusBadRequest)
		return
	}

	view, err := h.assignments.SetMachines(r.Context(), id, req.Machines)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, view)
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid assignment id", http.StatusBadRequest)
		return
	}

	view, err := h.assignments.Get(r.Context(), id)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, view)
}
