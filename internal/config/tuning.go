// Package config loads stream tuning parameters from JSON. Pointer
// fields distinguish "not set" from zero, so partial configs merge
// cleanly over built-in defaults and command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pointlab/depthstream/internal/stream/network"
)

// TuningConfig is the root configuration document. Fields omitted from
// the JSON keep their defaults; the Get* accessors do the fallback.
type TuningConfig struct {
	// Network params. Durations are strings like "5ms".
	ServerAddr       *string `json:"server_addr,omitempty"`
	DataPort         *int    `json:"data_port,omitempty"`
	DiscoveryPort    *int    `json:"discovery_port,omitempty"`
	PollWindow       *string `json:"poll_window,omitempty"`
	DiscoveryTimeout *string `json:"discovery_timeout,omitempty"`
	DiscoveryBackoff *string `json:"discovery_backoff,omitempty"`
	Diagnostics      *bool   `json:"diagnostics,omitempty"`

	// Dispatch params
	ReadbackInterval *string `json:"readback_interval,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	for name, d := range map[string]*string{
		"poll_window":       c.PollWindow,
		"discovery_timeout": c.DiscoveryTimeout,
		"discovery_backoff": c.DiscoveryBackoff,
		"readback_interval": c.ReadbackInterval,
	} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}
	if c.DataPort != nil && (*c.DataPort < 1 || *c.DataPort > 65535) {
		return fmt.Errorf("data_port must be 1-65535, got %d", *c.DataPort)
	}
	if c.DiscoveryPort != nil && (*c.DiscoveryPort < 1 || *c.DiscoveryPort > 65535) {
		return fmt.Errorf("discovery_port must be 1-65535, got %d", *c.DiscoveryPort)
	}
	return nil
}

func (c *TuningConfig) duration(field *string, fallback time.Duration) time.Duration {
	if field == nil || *field == "" {
		return fallback
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return fallback
	}
	return d
}

func (c *TuningConfig) GetPollWindow() time.Duration {
	return c.duration(c.PollWindow, network.DefaultPollWindow)
}

func (c *TuningConfig) GetDiscoveryTimeout() time.Duration {
	return c.duration(c.DiscoveryTimeout, network.DefaultDiscoveryTimeout)
}

func (c *TuningConfig) GetDiscoveryBackoff() time.Duration {
	return c.duration(c.DiscoveryBackoff, network.DefaultDiscoveryBackoff)
}

func (c *TuningConfig) GetReadbackInterval() time.Duration {
	return c.duration(c.ReadbackInterval, 500*time.Millisecond)
}

func (c *TuningConfig) GetServerAddr() string {
	if c.ServerAddr == nil {
		return ""
	}
	return *c.ServerAddr
}

func (c *TuningConfig) GetDataPort() int {
	if c.DataPort == nil {
		return 5556
	}
	return *c.DataPort
}

func (c *TuningConfig) GetDiscoveryPort() int {
	if c.DiscoveryPort == nil {
		return network.DefaultDiscoveryPort
	}
	return *c.DiscoveryPort
}

func (c *TuningConfig) GetDiagnostics() bool {
	return c.Diagnostics != nil && *c.Diagnostics
}
