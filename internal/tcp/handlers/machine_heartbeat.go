package handlers

import (
	"context"
	"errors"
	"net"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*MachineHeartbeatHandler)(nil)

// MachineHeartbeatHandler keeps an idle machine marked online
type MachineHeartbeatHandler struct {
	MachineService machine.IMachineService
	Logger         primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *MachineHeartbeatHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, machineID *string) error {
	id, ok := boundMachine(machineID)
	if !ok {
		return connectionmanager.SendMessage(conn, defs.MsgRegistrationRequired, nil)
	}

	m, err := h.MachineService.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return connectionmanager.SendMessage(conn, defs.MsgRegistrationRequired, nil)
		}
		connectionmanager.SendErrorMessage(conn, errorCode(err), "failed to update heartbeat")
		return nil
	}

	if err := h.MachineService.Touch(ctx, m); err != nil {
		h.Logger.Error("Failed to update machine heartbeat", "machineId", id, "error", err)
		connectionmanager.SendErrorMessage(conn, errorCode(err), "failed to update heartbeat")
		return nil
	}

	h.Logger.Debug("Machine heartbeat received", "machineId", id)
	return connectionmanager.SendJSON(conn, defs.MsgAck, defs.AckData{})
}
