package scriptbox_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intscriptbox "github.com/slok/scriptbox/test/integration/scriptbox"
)

// runOutput matches the JSON output of `scriptbox run --format json`.
type runOutput struct {
	Boots    int `json:"boots"`
	Snapshot struct {
		Digest string `json:"digest"`
	} `json:"snapshot"`
	Scripts []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Dispatched bool   `json:"dispatched"`
		Output     string `json:"output"`
		Error      string `json:"error"`
	} `json:"scripts"`
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestIntegrationRun(t *testing.T) {
	config := intscriptbox.NewConfig(t)

	tests := map[string]struct {
		scripts   map[string]string
		config    string
		args      []string
		expErr    bool
		expBoots  int
		expOutput map[string]string
		expStatus map[string]string
	}{
		"Scripts should not see the state of previous scripts.": {
			scripts: map[string]string{
				"1-define.js": `globalThis.leak = "yes"; print(leak)`,
				"2-check.js":  `print(typeof leak)`,
			},
			expBoots: 1,
			expOutput: map[string]string{
				"1-define.js": "yes\n",
				"2-check.js":  "undefined\n",
			},
		},

		"Env from the config and flags should be exposed to the scripts.": {
			scripts:  map[string]string{"env.js": `print(env.STAGE, env.USER_NAME)`},
			config:   "env:\n  STAGE: config\n  USER_NAME: config\n",
			args:     []string{"--env", "USER_NAME=flag"},
			expBoots: 1,
			expOutput: map[string]string{
				"env.js": "config flag\n",
			},
		},

		"A timed out script should poison the sandbox and the next script should get a new one.": {
			scripts: map[string]string{
				"1-loop.js":  `for (;;) {}`,
				"2-after.js": `print("alive")`,
			},
			args:     []string{"--timeout", "200ms"},
			expErr:   true,
			expBoots: 2,
			expOutput: map[string]string{
				"2-after.js": "alive\n",
			},
			expStatus: map[string]string{
				"1-loop.js":  "poisoned",
				"2-after.js": "dispatched",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			dir := t.TempDir()
			configPath := writeFile(t, dir, "config.yaml", test.config)

			// Map iteration is random, files are named to be run in order.
			args := append([]string{}, test.args...)
			for _, file := range []string{"1-define.js", "2-check.js", "env.js", "1-loop.js", "2-after.js"} {
				if code, ok := test.scripts[file]; ok {
					args = append(args, writeFile(t, dir, file, code))
				}
			}

			stdout, stderr, err := intscriptbox.RunScripts(ctx, config, configPath, args...)
			if test.expErr {
				require.Error(err)
			} else {
				require.NoError(err, "stderr: %s", stderr)
			}

			var out runOutput
			require.NoError(json.Unmarshal(stdout, &out), "stdout: %s", stdout)
			assert.Equal(test.expBoots, out.Boots)
			assert.NotEmpty(out.Snapshot.Digest)

			got := map[string]string{}
			status := map[string]string{}
			for _, s := range out.Scripts {
				got[s.Name] = s.Output
				status[s.Name] = s.Status
			}
			for file, exp := range test.expOutput {
				assert.Equal(exp, got[file], file)
			}
			for file, exp := range test.expStatus {
				assert.Equal(exp, status[file], file)
			}
		})
	}
}

func TestIntegrationDoctor(t *testing.T) {
	config := intscriptbox.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stdout, _, err := intscriptbox.RunDoctor(ctx, config)
	require.NoError(t, err)

	var checks []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(stdout, &checks))

	ids := map[string]string{}
	for _, c := range checks {
		ids[c.ID] = c.Status
	}
	assert.Equal(t, "ok", ids["emulated_runtime"])
	assert.Contains(t, ids, "kvm_available")
}
