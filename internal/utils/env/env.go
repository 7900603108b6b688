package env

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"

	"github.com/slok/scriptbox/internal/model"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ParseSpecs parses `KEY=VALUE` specs, a `KEY` spec takes the value from the
// host environment. Keys must be valid script identifiers.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !IsValidKey(key) {
			return nil, fmt.Errorf("invalid environment variable key %q: %w", key, model.ErrNotValid)
		}

		if !ok {
			value, ok = os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set: %w", key, model.ErrNotValid)
			}
		}

		env[key] = value
	}

	return env, nil
}

// Merge returns a new map with base values overridden by override values.
func Merge(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)

	return merged
}

// IsValidKey returns true if the key can be used as a script identifier.
func IsValidKey(k string) bool {
	return envKeyRegexp.MatchString(k)
}
