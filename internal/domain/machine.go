package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TestMachine is a registered executor
type TestMachine struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	Host        string       `db:"host" json:"host"`
	Fingerprint string       `db:"fingerprint" json:"fingerprint"`
	Config      string       `db:"config" json:"config"`
	Enabled     bool         `db:"enabled" json:"enabled"`
	LastContact sql.NullTime `db:"last_contact" json:"-"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	Online      bool         `db:"-" json:"online"`
}

// MachineRegistration is the handshake an executor sends before fetching jobs
type MachineRegistration struct {
	ID          uuid.UUID `json:"id"`
	Host        string    `json:"host"`
	Fingerprint string    `json:"fingerprint"`
	Config      string    `json:"config"`
}

// MachinePresence is the short-lived liveness record kept outside the database
type MachinePresence struct {
	ID       uuid.UUID `json:"id"`
	Host     string    `json:"host"`
	LastSeen time.Time `json:"last_seen"`
}

type MachineTable struct {
	ID          string
	Host        string
	Fingerprint string
	Config      string
	Enabled     string
	LastContact string
	CreatedAt   string
}

func (t MachineTable) TableName() string {
	return "test_machines"
}

func GetMachineTable() MachineTable {
	return MachineTable{
		ID:          "id",
		Host:        "host",
		Fingerprint: "fingerprint",
		Config:      "config",
		Enabled:     "enabled",
		LastContact: "last_contact",
		CreatedAt:   "created_at",
	}
}
