package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "executor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  url: http://localhost:8082
  secret: s3cret
poll_interval: 15s
capabilities:
  os: linux
  arch: amd64
  cores: 4
  tools:
    gcc: "12"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, 15*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, []string{"make"}, cfg.CompileCommand)
	assert.Equal(t, []string{"python3"}, cfg.Interpreters[".py"])
	assert.Equal(t, "12", cfg.Capabilities.Tools["gcc"])
	assert.Equal(t, uuid.Nil, cfg.MachineID)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing url":      "server:\n  secret: x\n",
		"missing secret":   "server:\n  url: http://h\n",
		"tcp without addr": "server:\n  url: http://h\n  secret: x\n  transport: tcp\n",
		"bad transport":    "server:\n  url: http://h\n  secret: x\n  transport: carrier-pigeon\n",
		"bad duration":     "server:\n  url: http://h\n  secret: x\npoll_interval: soon\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestEnsureMachineIDIsSaved(t *testing.T) {
	path := writeConfig(t, "server:\n  url: http://h\n  secret: x\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.True(t, cfg.EnsureMachineID())
	assert.False(t, cfg.EnsureMachineID())
	require.NoError(t, cfg.Save(path))

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.MachineID, reloaded.MachineID)
	assert.Equal(t, cfg.PollInterval, reloaded.PollInterval)
	assert.Equal(t, cfg.Capabilities, reloaded.Capabilities)
}
