// package internal
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
	"gitlab.com/opensubmit.net/internal/tcp/handlers"
)

// TCPServer serves the executor protocol over framed TCP connections
type TCPServer struct {
	address         string
	machineService  machine.IMachineService
	dispatchService dispatch.IDispatchService
	ingestService   ingest.IIngestService
	logger          primary.Logger
	listener        net.Listener
	connectionMgr   *connectionmanager.ConnectionManager
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	handlers        map[byte]primary.MessageHandler
}

// TCPServerOption configures a TCPServer
type TCPServerOption func(*TCPServer)

// WithAddress sets the server address
func WithAddress(address string) TCPServerOption {
	return func(s *TCPServer) {
		s.address = address
	}
}

// NewTCPServer creates a new TCP server
func NewTCPServer(
	machineService machine.IMachineService,
	dispatchService dispatch.IDispatchService,
	ingestService ingest.IIngestService,
	logger primary.Logger,
	options ...TCPServerOption,
) *TCPServer {
	server := &TCPServer{
		address:         ":9000", // Default address
		machineService:  machineService,
		dispatchService: dispatchService,
		ingestService:   ingestService,
		logger:          logger,
		connectionMgr:   connectionmanager.NewConnectionManager(logger),
		stopCh:          make(chan struct{}),
	}

	// Apply options
	for _, option := range options {
		option(server)
	}

	// Register message handlers
	server.setupMessageHandlers()

	return server
}

// setupMessageHandlers registers all message handlers
func (s *TCPServer) setupMessageHandlers() {
	s.handlers = map[byte]primary.MessageHandler{
		defs.MsgRegister:  &handlers.MachineRegistrationHandler{MachineService: s.machineService, ConnectionMgr: s.connectionMgr, Logger: s.logger},
		defs.MsgHeartbeat: &handlers.MachineHeartbeatHandler{MachineService: s.machineService, Logger: s.logger},
		defs.MsgFetch:     &handlers.JobFetchHandler{DispatchService: s.dispatchService, Logger: s.logger},
		defs.MsgResult:    &handlers.JobResultHandler{IngestService: s.ingestService, Logger: s.logger},
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.logger.Info("TCP server listening", "address", s.listener.Addr().String())

	// Accept connections in a goroutine
	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the listening address once started
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectedMachines returns the number of registered connections
func (s *TCPServer) ConnectedMachines() int {
	return s.connectionMgr.Count()
}

// Stop closes the listener and every connection, then waits for the handlers or ctx
func (s *TCPServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	// Close listener
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Error("Failed to close listener", "error", err)
		}
	}

	// Close all connections
	s.connectionMgr.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acceptConnections accepts incoming connections
func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("Failed to accept connection", "error", err)
				time.Sleep(defs.ConnectionRetryDelay) // Avoid tight loop on error
				continue
			}
		}

		// Handle connection in a goroutine
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs the message loop of one executor connection until it closes
func (s *TCPServer) ServeConn(conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
			_ = conn.Close()
		case <-ctx.Done():
		}
	}()

	// Set initial timeout for registration
	_ = conn.SetDeadline(time.Now().Add(defs.InitialRegistrationTimeout))

	var machineID string
	defer func() {
		if machineID != "" {
			s.connectionMgr.RemoveMachine(machineID, conn)
			s.logger.Info("Machine disconnected", "machineId", machineID)
		}
	}()

	for {
		msgType, payload, err := connectionmanager.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("Failed to read message", "machineId", machineID, "error", err)
			}
			return
		}

		// Find handler for message type
		handler, exists := s.handlers[msgType]
		if !exists {
			s.logger.Error("Unknown message type", "type", msgType)
			connectionmanager.SendErrorMessage(conn, defs.CodeBadRequest, fmt.Sprintf("unknown message type: %d", msgType))
			continue
		}

		if err := handler.HandleMessage(ctx, conn, payload, &machineID); err != nil {
			s.logger.Error("Error handling message", "type", msgType, "machineId", machineID, "error", err)
			return
		}

		// Registered connections may stay idle between polls
		if machineID != "" {
			_ = conn.SetDeadline(time.Now().Add(defs.IdleTimeout))
		}
	}
}
