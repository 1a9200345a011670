package primary

import (
	"context"
	"net"
)

// MessageHandler defines an interface for handling different message types.
// machineID is the identity bound to the connection once a message authenticated.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn net.Conn, payload []byte, machineID *string) error
}
