package staff

import "github.com/google/uuid"

// UpsertAssignmentRequest configures the test stages of an assignment
type UpsertAssignmentRequest struct {
	Title          string `json:"title"`
	CompileTest    bool   `json:"compile_test"`
	ValidityScript string `json:"validity_script"`
	FullScript     string `json:"full_script"`
	TestTimeout    int    `json:"test_timeout"`
}

// SetMachinesRequest replaces the machine affinity of an assignment
type SetMachinesRequest struct {
	Machines []uuid.UUID `json:"machines"`
}

// uploadMemoryBytes is how much of a multipart upload is held in memory before spilling to disk
const uploadMemoryBytes = 8 << 20

// maxUploadBytes caps the request body of an upload
var maxUploadBytes int64 = 64 << 20
