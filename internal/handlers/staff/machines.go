package staff

import (
	"net/http"

	"gitlab.com/opensubmit.net/internal/handlers"
)

func (h *Handler) ListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.machines.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to get machines", "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string]interface{}{"machines": machines})
}

func (h *Handler) OnlineMachines(w http.ResponseWriter, r *http.Request) {
	online, err := h.machines.Online(r.Context())
	if err != nil {
		h.logger.Error("Failed to get online machines", "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string]interface{}{"machines": online})
}

func (h *Handler) EnableMachine(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handler) DisableMachine(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := handlers.PathUUID(r, "id")
	if !ok {
		handlers.ResponseError(w, "invalid machine id", http.StatusBadRequest)
		return
	}

	var err error
	if enabled {
		err = h.machines.Enable(r.Context(), id)
	} else {
		err = h.machines.Disable(r.Context(), id)
	}
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}

	m, err := h.machines.Get(r.Context(), id)
	if err != nil {
		handlers.ResponseServiceError(w, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, m)
}
