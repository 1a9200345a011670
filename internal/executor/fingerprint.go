package executor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the canonical JSON form of the capabilities.
// Any capability change produces a new fingerprint, which forces a re-registration.
func Fingerprint(caps Capabilities) (string, error) {
	canonical, err := canonicalCapabilities(caps)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalCapabilities encodes caps with sorted map keys
func canonicalCapabilities(caps Capabilities) ([]byte, error) {
	data, err := json.Marshal(caps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capabilities: %w", err)
	}
	return data, nil
}
