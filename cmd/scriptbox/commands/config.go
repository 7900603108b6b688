package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/scriptbox/internal/model"
)

// Config is the CLI configuration file.
type Config struct {
	Sandbox SandboxConfig     `yaml:"sandbox"`
	Env     map[string]string `yaml:"env"`
}

// SandboxConfig overrides the sandbox defaults, unset values keep the default.
type SandboxConfig struct {
	StackSize      uint64        `yaml:"stackSize"`
	HeapSize       uint64        `yaml:"heapSize"`
	InputDataSize  uint64        `yaml:"inputDataSize"`
	OutputDataSize uint64        `yaml:"outputDataSize"`
	CallTimeout    time.Duration `yaml:"callTimeout"`
}

// Apply sets the configured values on a sandbox configuration.
func (c SandboxConfig) Apply(cfg model.SandboxConfig) model.SandboxConfig {
	if c.StackSize != 0 {
		cfg.StackSize = c.StackSize
	}
	if c.HeapSize != 0 {
		cfg.HeapSize = c.HeapSize
	}
	if c.InputDataSize != 0 {
		cfg.InputDataSize = c.InputDataSize
	}
	if c.OutputDataSize != 0 {
		cfg.OutputDataSize = c.OutputDataSize
	}
	if c.CallTimeout != 0 {
		cfg.CallTimeout = c.CallTimeout
	}
	return cfg
}

// LoadConfig loads the configuration file, a missing file is an empty configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config file: %w: %w", model.ErrConfiguration, err)
	}

	if cfg.Sandbox.CallTimeout < 0 {
		return nil, fmt.Errorf("call timeout can't be negative: %w", model.ErrConfiguration)
	}

	return cfg, nil
}
