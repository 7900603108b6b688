package env_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/utils/env"
)

func TestParseSpecs(t *testing.T) {
	t.Setenv("SCRIPTBOX_FROM_HOST", "host-value")

	tests := map[string]struct {
		specs  []string
		expEnv map[string]string
		expErr bool
	}{
		"KEY=VALUE should parse.": {
			specs:  []string{"FOO=bar"},
			expEnv: map[string]string{"FOO": "bar"},
		},

		"Values can contain the separator.": {
			specs:  []string{"QUERY=a=b"},
			expEnv: map[string]string{"QUERY": "a=b"},
		},

		"KEY should inherit from host.": {
			specs:  []string{"SCRIPTBOX_FROM_HOST"},
			expEnv: map[string]string{"SCRIPTBOX_FROM_HOST": "host-value"},
		},

		"Later entries should override earlier ones.": {
			specs:  []string{"FOO=one", "FOO=two"},
			expEnv: map[string]string{"FOO": "two"},
		},

		"Missing inherited var should fail.": {
			specs:  []string{"SCRIPTBOX_DOES_NOT_EXIST"},
			expErr: true,
		},

		"Invalid key should fail.": {
			specs:  []string{"1INVALID=value"},
			expErr: true,
		},

		"Empty spec should fail.": {
			specs:  []string{""},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := env.ParseSpecs(test.specs)

			if test.expErr {
				assert.True(t, errors.Is(err, model.ErrNotValid), "got: %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expEnv, got)
		})
	}
}

func TestMerge(t *testing.T) {
	got := env.Merge(
		map[string]string{"A": "1", "B": "1"},
		map[string]string{"B": "2", "C": "2"},
	)

	assert.Equal(t, map[string]string{"A": "1", "B": "2", "C": "2"}, got)
	assert.Equal(t, map[string]string{}, env.Merge(nil, nil))
}
