package hypervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/model"
)

func TestCheckKVM(t *testing.T) {
	tests := map[string]struct {
		path       func(t *testing.T) string
		failStatus model.CheckStatus
		expStatus  model.CheckStatus
	}{
		"A missing device should fail with the requested status.": {
			path:       func(t *testing.T) string { return filepath.Join(t.TempDir(), "kvm") },
			failStatus: model.CheckStatusWarning,
			expStatus:  model.CheckStatusWarning,
		},

		"A regular file should fail with the requested status.": {
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "kvm")
				_ = os.WriteFile(p, []byte{}, 0o600)
				return p
			},
			failStatus: model.CheckStatusError,
			expStatus:  model.CheckStatusError,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			res := CheckKVMPath(test.path(t), test.failStatus)

			assert.Equal(t, "kvm_available", res.ID)
			assert.Equal(t, test.expStatus, res.Status)
		})
	}
}

func TestCheckTypes(t *testing.T) {
	tests := map[string]struct {
		expected []abi.Type
		args     []abi.Value
		expErr   bool
	}{
		"No parameters should match.": {},

		"Matching parameters should match.": {
			expected: []abi.Type{abi.TypeString, abi.TypeInt},
			args:     []abi.Value{abi.String("a"), abi.Int(1)},
		},

		"A different number of parameters should fail.": {
			expected: []abi.Type{abi.TypeString},
			expErr:   true,
		},

		"A different parameter type should fail.": {
			expected: []abi.Type{abi.TypeString},
			args:     []abi.Value{abi.Bool(true)},
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gerr := CheckTypes(test.expected, test.args)

			if test.expErr {
				if assert.NotNil(t, gerr) {
					assert.Equal(t, abi.ErrorCodeParameterTypeMismatch, gerr.Code)
				}
			} else {
				assert.Nil(t, gerr)
			}
		})
	}
}
