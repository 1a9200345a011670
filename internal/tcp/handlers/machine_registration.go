package handlers

import (
	"context"
	"encoding/json"
	"net"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

// Implementation of message handlers
// Each handler deals with one specific message type

var _ primary.MessageHandler = (*MachineRegistrationHandler)(nil)

// MachineRegistrationHandler authenticates the connection and registers the machine
type MachineRegistrationHandler struct {
	MachineService machine.IMachineService
	ConnectionMgr  *connectionmanager.ConnectionManager
	Logger         primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *MachineRegistrationHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, machineID *string) error {
	var registerData defs.RegisterData
	if err := json.Unmarshal(payload, &registerData); err != nil {
		h.Logger.Error("Failed to parse machine registration", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeBadRequest, "invalid registration data")
		return err
	}

	if err := h.MachineService.Authenticate(registerData.Secret); err != nil {
		h.Logger.Warn("Rejected machine registration", "remote", conn.RemoteAddr().String())
		connectionmanager.SendErrorMessage(conn, defs.CodeForbidden, "forbidden")
		return err
	}

	config := "{}"
	if len(registerData.Config) > 0 {
		config = string(registerData.Config)
	}
	m, err := h.MachineService.Register(ctx, domain.MachineRegistration{
		ID:          registerData.ID,
		Host:        registerData.Host,
		Fingerprint: registerData.Fingerprint,
		Config:      config,
	})
	if err != nil {
		h.Logger.Error("Failed to register machine", "machineId", registerData.ID, "error", err)
		connectionmanager.SendErrorMessage(conn, errorCode(err), "failed to register machine")
		return err
	}

	// Store machine ID and connection
	if *machineID != "" && *machineID != m.ID.String() {
		h.ConnectionMgr.RemoveMachine(*machineID, conn)
	}
	*machineID = m.ID.String()
	h.ConnectionMgr.RegisterMachine(*machineID, conn)

	h.Logger.Info("Machine registered",
		"machineId", m.ID,
		"host", m.Host,
		"remote", conn.RemoteAddr().String())
	return connectionmanager.SendJSON(conn, defs.MsgRegistered, m)
}

// boundMachine returns the machine the connection registered as
func boundMachine(machineID *string) (uuid.UUID, bool) {
	if machineID == nil || *machineID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(*machineID)
	return id, err == nil
}
