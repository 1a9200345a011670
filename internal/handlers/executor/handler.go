package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/handlers"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

// Handler serves the executor API
type Handler struct {
	machines machine.IMachineService
	dispatch dispatch.IDispatchService
	ingest   ingest.IIngestService
	conceal  bool
	logger   primary.Logger
}

// NewHandler creates a new executor handler. With conceal set, a fetch
// with a bad secret looks like an idle queue.
func NewHandler(
	machines machine.IMachineService,
	dispatch dispatch.IDispatchService,
	ingest ingest.IIngestService,
	conceal bool,
	logger primary.Logger,
) *Handler {
	return &Handler{
		machines: machines,
		dispatch: dispatch,
		ingest:   ingest,
		conceal:  conceal,
		logger:   logger,
	}
}

// RegisterRoutes registers the API routes for Handler
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/executor/machines", h.RegisterMachine).Methods("POST")
	router.HandleFunc("/api/executor/jobs/fetch", h.FetchJob).Methods("POST")
	router.HandleFunc("/api/executor/jobs/{jobId}/artifact", h.DownloadArtifact).Methods("GET")
	router.HandleFunc("/api/executor/jobs/{jobId}/script", h.DownloadScript).Methods("GET")
	router.HandleFunc("/api/executor/jobs/{jobId}/result", h.SubmitResult).Methods("POST")
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) bool {
	if err := h.machines.Authenticate(r.Header.Get(SecretHeader)); err != nil {
		h.logger.Warn("Executor authentication failed", "remote", r.RemoteAddr, "path", r.URL.Path)
		handlers.ResponseError(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func machineID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(MachineIDHeader))
	return id, err == nil
}

// RegisterMachine handles the executor handshake
func (h *Handler) RegisterMachine(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	var req RegisterMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		handlers.ResponseError(w, "invalid request", http.StatusBadRequest)
		return
	}

	m, err := h.machines.Register(r.Context(), domain.MachineRegistration{
		ID:          req.ID,
		Host:        req.Host,
		Fingerprint: req.Fingerprint,
		Config:      string(req.Config),
	})
	if err != nil {
		h.logger.Error("Failed to register machine", "machineId", req.ID, "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusCreated, m)
}

// FetchJob hands out the next job for the calling machine
func (h *Handler) FetchJob(w http.ResponseWriter, r *http.Request) {
	if err := h.machines.Authenticate(r.Header.Get(SecretHeader)); err != nil {
		h.logger.Warn("Executor authentication failed", "remote", r.RemoteAddr, "path", r.URL.Path)
		if h.conceal {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handlers.ResponseError(w, "forbidden", http.StatusForbidden)
		return
	}

	id, ok := machineID(r)
	if !ok {
		handlers.ResponseError(w, "registration required", http.StatusPreconditionRequired)
		return
	}

	var req FetchJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handlers.ResponseError(w, "invalid request", http.StatusBadRequest)
		return
	}

	job, err := h.dispatch.RequestJob(r.Context(), id, req.Fingerprint)
	if err != nil {
		if errors.Is(err, errs.ErrRegistrationRequired) {
			handlers.ResponseError(w, "registration required", http.StatusPreconditionRequired)
			return
		}
		h.logger.Error("Failed to dispatch job", "machineId", id, "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, job)
}

// DownloadArtifact streams the submission file of a job
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.dispatch.OpenArtifact)
}

// DownloadScript streams the test script of a job
func (h *Handler) DownloadScript(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.dispatch.OpenScript)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request, open func(ctx context.Context, machineID, jobID uuid.UUID) (string, io.ReadCloser, error)) {
	if !h.authenticate(w, r) {
		return
	}

	id, ok := machineID(r)
	jobID, jobOK := handlers.PathUUID(r, "jobId")
	if !ok || !jobOK {
		handlers.ResponseError(w, "not found", http.StatusNotFound)
		return
	}

	name, content, err := open(r.Context(), id, jobID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			handlers.ResponseError(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to open job file", "jobId", jobID, "error", err)
		handlers.ResponseServiceError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if _, err := io.Copy(w, content); err != nil {
		h.logger.Warn("Job file download interrupted", "jobId", jobID, "error", err)
	}
}

// SubmitResult records the outcome of a job
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	id, ok := machineID(r)
	jobID, jobOK := handlers.PathUUID(r, "jobId")
	if !ok || !jobOK {
		handlers.ResponseError(w, "stale or unauthorized result", http.StatusConflict)
		return
	}

	var req SubmitResultRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResultBytes)).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		handlers.ResponseError(w, "invalid request", http.StatusBadRequest)
		return
	}

	err := h.ingest.SubmitResult(r.Context(), id, domain.ResultReport{
		JobID:        jobID,
		SubmissionID: req.SubmissionID,
		Stage:        req.Stage,
		Success:      req.Success,
		Payload:      req.Payload,
		PerfData:     req.PerfData,
	})
	switch {
	case err == nil:
		handlers.ResponseWithJson(w, http.StatusOK, map[string]string{"status": "recorded"})
	case errors.Is(err, errs.ErrStaleOrUnauthorizedResult):
		handlers.ResponseError(w, "stale or unauthorized result", http.StatusConflict)
	case errors.Is(err, errs.ErrPersistenceConflict):
		handlers.ResponseError(w, "conflict, retry later", http.StatusServiceUnavailable)
	default:
		h.logger.Error("Failed to record result", "jobId", jobID, "error", err)
		handlers.ResponseServiceError(w, err)
	}
}
