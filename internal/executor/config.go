// Package executor is the test-machine side of the executor protocol: it
// registers, fetches jobs, runs them and reports the outcome.
package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	TransportHTTP = "http"
	TransportTCP  = "tcp"

	defaultPollInterval = 30 * time.Second
)

// Config is the executor configuration file
type Config struct {
	Server       ServerConfig `yaml:"server"`
	MachineID    uuid.UUID    `yaml:"machine_id"`
	Host         string       `yaml:"host,omitempty"`
	WorkDir      string       `yaml:"work_dir,omitempty"`
	PollInterval Duration     `yaml:"poll_interval,omitempty"`

	// CompileCommand runs in the unpacked submission for the compile stage
	CompileCommand []string `yaml:"compile_command,omitempty"`

	// Interpreters maps a script extension to the command that runs it
	Interpreters map[string][]string `yaml:"interpreters,omitempty"`

	// Capabilities describe the machine; they are sent as its config and hashed into the fingerprint
	Capabilities Capabilities `yaml:"capabilities"`
}

type ServerConfig struct {
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	Transport string `yaml:"transport,omitempty"`
	TCPAddr   string `yaml:"tcp_addr,omitempty"`
}

type Capabilities struct {
	OS    string            `yaml:"os" json:"os"`
	Arch  string            `yaml:"arch" json:"arch"`
	Cores int               `yaml:"cores" json:"cores"`
	Tools map[string]string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Duration reads "30s" style values from YAML
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig reads and validates a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = TransportHTTP
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.Host == "" {
		c.Host, _ = os.Hostname()
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if len(c.CompileCommand) == 0 {
		c.CompileCommand = []string{"make"}
	}
	if c.Interpreters == nil {
		c.Interpreters = map[string][]string{
			".py": {"python3"},
			".sh": {"sh"},
		}
	}
	if c.Capabilities.OS == "" {
		c.Capabilities.OS = runtime.GOOS
	}
	if c.Capabilities.Arch == "" {
		c.Capabilities.Arch = runtime.GOARCH
	}
	if c.Capabilities.Cores == 0 {
		c.Capabilities.Cores = runtime.NumCPU()
	}
}

func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if c.Server.Secret == "" {
		return errors.New("server.secret is required")
	}
	switch c.Server.Transport {
	case TransportHTTP:
	case TransportTCP:
		if c.Server.TCPAddr == "" {
			return errors.New("server.tcp_addr is required for the tcp transport")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	return nil
}

// EnsureMachineID assigns a machine id if the config has none and reports whether it did
func (c *Config) EnsureMachineID() bool {
	if c.MachineID != uuid.Nil {
		return false
	}
	c.MachineID = uuid.New()
	return true
}

// Save writes the config back, replacing the file atomically
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".executor-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
