package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default scriptbox directory name (relative to home).
	DefaultDataDir = ".scriptbox"
	// ConfigFile is the CLI configuration filename inside the data directory.
	ConfigFile = "config.yaml"
	// EnvVarPrefix is the prefix of the CLI flags environment variables.
	EnvVarPrefix = "SCRIPTBOX"
)

// ConfigPath returns the configuration file path for a home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, DefaultDataDir, ConfigFile)
}
