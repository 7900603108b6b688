package scriptbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/scriptbox/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("SCRIPTBOX_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("scriptbox binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "SCRIPTBOX_INTEGRATION"
		envBinary     = "SCRIPTBOX_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunScripts runs `scriptbox run` with JSON output and an isolated config path.
func RunScripts(ctx context.Context, config Config, configPath string, args ...string) (stdout, stderr []byte, err error) {
	cmdArgs := append([]string{"--config", configPath, "--format", "json", "run"}, args...)
	return testutils.RunScriptbox(ctx, nil, config.Binary, cmdArgs, false)
}

// RunDoctor runs `scriptbox doctor` with JSON output.
func RunDoctor(ctx context.Context, config Config) (stdout, stderr []byte, err error) {
	return testutils.RunScriptbox(ctx, nil, config.Binary, []string{"--format", "json", "doctor"}, true)
}
