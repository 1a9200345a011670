// Package staff serves the authenticated course-staff API.
package staff

import (
	"github.com/gorilla/mux"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/assignment"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/core/services/submission"
	"gitlab.com/opensubmit.net/internal/handlers"
)

type Handler struct {
	assignments assignment.IAssignmentService
	submissions submission.ISubmissionService
	machines    machine.IMachineService
	logger      primary.Logger
}

func NewHandler(
	assignments assignment.IAssignmentService,
	submissions submission.ISubmissionService,
	machines machine.IMachineService,
	logger primary.Logger,
) *Handler {
	return &Handler{
		assignments: assignments,
		submissions: submissions,
		machines:    machines,
		logger:      logger,
	}
}

// RegisterRoutes mounts the staff routes under /api/staff behind the JWT middleware
func (h *Handler) RegisterRoutes(router *mux.Router, middleware *handlers.MiddlewareProvider) {
	r := router.PathPrefix("/api/staff").Subrouter()
	r.Use(middleware.JWTMiddleware)

	r.HandleFunc("/assignments/{id}", h.UpsertAssignment).Methods("PUT")
	r.HandleFunc("/assignments/{id}/machines", h.SetAssignmentMachines).Methods("PUT")
	r.HandleFunc("/assignments/{id}", h.GetAssignment).Methods("GET")

	r.HandleFunc("/submissions", h.CreateSubmission).Methods("POST")
	r.HandleFunc("/submissions", h.ListSubmissions).Methods("GET")
	r.HandleFunc("/submissions/{id}", h.GetSubmission).Methods("GET")
	r.HandleFunc("/submissions/{id}/file", h.ResubmitFile).Methods("POST")
	r.HandleFunc("/submissions/{id}/withdraw", h.transition(h.submissions.Withdraw)).Methods("POST")
	r.HandleFunc("/submissions/{id}/retest", h.transition(h.submissions.Retest)).Methods("POST")
	r.HandleFunc("/submissions/{id}/grading/start", h.transition(h.submissions.StartGrading)).Methods("POST")
	r.HandleFunc("/submissions/{id}/grading/finish", h.transition(h.submissions.FinishGrading)).Methods("POST")
	r.HandleFunc("/submissions/{id}/close", h.transition(h.submissions.Close)).Methods("POST")

	r.HandleFunc("/machines", h.ListMachines).Methods("GET")
	r.HandleFunc("/machines/online", h.OnlineMachines).Methods("GET")
	r.HandleFunc("/machines/{id}/enable", h.EnableMachine).Methods("POST")
	r.HandleFunc("/machines/{id}/disable", h.DisableMachine).Methods("POST")
}
