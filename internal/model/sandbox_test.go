package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scriptbox/internal/model"
)

func TestSandboxConfigValidate(t *testing.T) {
	port := func(p uint16) *uint16 { return &p }

	tests := map[string]struct {
		cfg    func() model.SandboxConfig
		expErr bool
	}{
		"The default configuration should be valid.": {
			cfg: model.DefaultSandboxConfig,
		},

		"A zero stack size should fail.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.StackSize = 0
				return c
			},
			expErr: true,
		},

		"A zero heap size should fail.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.HeapSize = 0
				return c
			},
			expErr: true,
		},

		"A zero input buffer should fail.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.InputDataSize = 0
				return c
			},
			expErr: true,
		},

		"A negative call timeout should fail.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.CallTimeout = -time.Second
				return c
			},
			expErr: true,
		},

		"A zero debug port should fail.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.DebugPort = port(0)
				return c
			},
			expErr: true,
		},

		"A debug port should be valid.": {
			cfg: func() model.SandboxConfig {
				c := model.DefaultSandboxConfig()
				c.DebugPort = port(8080)
				return c
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			err := test.cfg().Validate()

			if test.expErr {
				assert.Error(err)
				assert.True(errors.Is(err, model.ErrConfiguration))
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestDefaultSandboxConfig(t *testing.T) {
	cfg := model.DefaultSandboxConfig()

	assert.Equal(t, uint64(131072), cfg.StackSize)
	assert.Equal(t, uint64(524288), cfg.HeapSize)
	assert.Nil(t, cfg.DebugPort)
}
