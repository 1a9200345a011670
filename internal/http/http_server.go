package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/assignment"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/core/services/submission"
	"gitlab.com/opensubmit.net/internal/handlers"
	"gitlab.com/opensubmit.net/internal/handlers/executor"
	"gitlab.com/opensubmit.net/internal/handlers/staff"
)

type ServiceProvider struct {
	machineService    machine.IMachineService
	dispatchService   dispatch.IDispatchService
	ingestService     ingest.IIngestService
	submissionService submission.ISubmissionService
	assignmentService assignment.IAssignmentService
	jwtService        primary.JWTService
}

func NewServiceProvider(
	machineService machine.IMachineService,
	dispatchService dispatch.IDispatchService,
	ingestService ingest.IIngestService,
	submissionService submission.ISubmissionService,
	assignmentService assignment.IAssignmentService,
	jwtService primary.JWTService,
) *ServiceProvider {
	return &ServiceProvider{
		machineService:    machineService,
		dispatchService:   dispatchService,
		ingestService:     ingestService,
		submissionService: submissionService,
		assignmentService: assignmentService,
		jwtService:        jwtService,
	}
}

type Server struct {
	router             *mux.Router
	srv                *http.Server
	Port               int
	ServiceName        string
	ServiceProvider    ServiceProvider
	concealAuthFailure bool
	logger             primary.Logger
}

func NewServer(port int, serviceName string, serviceProvider ServiceProvider, concealAuthFailure bool, logger primary.Logger) *Server {
	return &Server{
		Port:               port,
		ServiceName:        serviceName,
		ServiceProvider:    serviceProvider,
		concealAuthFailure: concealAuthFailure,
		logger:             logger,
	}
}

func (s *Server) Init() error {
	r := mux.NewRouter()
	p := s.ServiceProvider
	executor.
		NewHandler(p.machineService, p.dispatchService, p.ingestService, s.concealAuthFailure, s.logger).
		RegisterRoutes(r)
	staff.
		NewHandler(p.assignmentService, p.submissionService, p.machineService, s.logger).
		RegisterRoutes(r, handlers.New(p.jwtService, s.logger))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.ResponseWithJson(w, http.StatusOK, map[string]string{"service": s.ServiceName, "status": "ok"})
	}).Methods("GET")
	s.router = r
	return nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background; errc receives the error if serving stops unexpectedly
func (s *Server) Start(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
			errc <- err
		}
		close(errc)
	}()
	return errc
}

func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", "error", err)
	}
}
