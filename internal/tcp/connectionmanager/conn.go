package connectionmanager

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

// ConnectionManager tracks the live connection of each registered machine
type ConnectionManager struct {
	Connections map[string]net.Conn
	ConnMutex   sync.RWMutex
	Logger      primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		Connections: make(map[string]net.Conn),
		Logger:      logger,
	}
}

// RegisterMachine binds a machine to conn. A previous connection of the same machine is closed.
func (cm *ConnectionManager) RegisterMachine(machineID string, conn net.Conn) {
	cm.ConnMutex.Lock()
	previous, exists := cm.Connections[machineID]
	cm.Connections[machineID] = conn
	cm.ConnMutex.Unlock()

	if exists && previous != conn {
		cm.Logger.Info("Replacing machine connection", "machineId", machineID)
		_ = previous.Close()
	}
}

// RemoveMachine forgets the machine if conn is still its current connection
func (cm *ConnectionManager) RemoveMachine(machineID string, conn net.Conn) {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()

	if current, exists := cm.Connections[machineID]; exists && current == conn {
		delete(cm.Connections, machineID)
	}
}

// GetConnection returns the connection for a specific machine
func (cm *ConnectionManager) GetConnection(machineID string) (net.Conn, bool) {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()

	conn, exists := cm.Connections[machineID]
	return conn, exists
}

// Count returns the number of connected machines
func (cm *ConnectionManager) Count() int {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()
	return len(cm.Connections)
}

// CloseAll closes every tracked connection
func (cm *ConnectionManager) CloseAll() {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()

	for machineID, conn := range cm.Connections {
		if err := conn.Close(); err != nil {
			cm.Logger.Error("Failed to close connection", "machineId", machineID, "error", err)
		}
		delete(cm.Connections, machineID)
	}
}

// SendErrorMessage sends an error message to an executor
func SendErrorMessage(conn net.Conn, code int, message string) {
	errorBytes, err := json.Marshal(defs.ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		// Can't do much if marshaling fails
		return
	}

	// Ignore errors here as the connection might be closing
	_ = SendMessage(conn, defs.MsgError, errorBytes)
}

// SendJSON marshals v and sends it as msgType
func SendJSON(conn net.Conn, msgType byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}
	return SendMessage(conn, msgType, payload)
}

// SendMessage writes one frame: magic, type, reserved byte, payload length, payload
func SendMessage(conn io.Writer, msgType byte, payload []byte) error {
	if len(payload) > defs.MaxPayloadSize {
		return fmt.Errorf("payload of %d bytes exceeds limit", len(payload))
	}

	frame := make([]byte, defs.HeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], defs.MagicNumber)
	frame[2] = msgType
	frame[3] = 0 // Reserved
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[defs.HeaderSize:], payload)

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage reads one frame from r
func ReadMessage(r io.Reader) (byte, []byte, error) {
	header := make([]byte, defs.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	magic := binary.BigEndian.Uint16(header[0:2])
	msgType := header[2]
	payloadLen := binary.BigEndian.Uint32(header[4:8])

	if magic != defs.MagicNumber {
		return 0, nil, fmt.Errorf("invalid magic number: %x", magic)
	}
	if payloadLen > defs.MaxPayloadSize {
		return 0, nil, fmt.Errorf("payload of %d bytes exceeds limit", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}
