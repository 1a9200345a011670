package defs

import "time"

// Protocol constants
const (
	MagicNumber uint16 = 0xCAFE
	HeaderSize         = 8

	// Executor to coordinator
	MsgRegister  byte = 0x01
	MsgHeartbeat byte = 0x02
	MsgFetch     byte = 0x03
	MsgResult    byte = 0x05

	// Coordinator to executor
	MsgRegistered           byte = 0x11
	MsgJob                  byte = 0x12
	MsgNoJob                byte = 0x13
	MsgAck                  byte = 0x14
	MsgRegistrationRequired byte = 0x15
	MsgError                byte = 0x07

	MaxPayloadSize = 8 << 20

	// Configuration constants
	InitialRegistrationTimeout = 30 * time.Second
	IdleTimeout                = 10 * time.Minute
	ConnectionRetryDelay       = 1 * time.Second
)

// Error codes follow the HTTP status of the equivalent executor route
const (
	CodeBadRequest  = 400
	CodeForbidden   = 403
	CodeStale       = 409
	CodeUnavailable = 503
	CodeInternal    = 500
)
