package emulated

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/model"
)

func TestWatchdog(t *testing.T) {
	tests := map[string]struct {
		interruptFirst bool
		expInterrupted bool
	}{
		"An interrupt on a running call should be delivered.": {
			interruptFirst: true,
			expInterrupted: true,
		},

		"An interrupt after the call finished should be ignored.": {
			interruptFirst: false,
			expInterrupted: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			w := &watchdog{}
			delivered := false
			var interrupted bool
			if test.interruptFirst {
				w.interrupt(func() { delivered = true })
				interrupted = w.finish()
			} else {
				interrupted = w.finish()
				w.interrupt(func() { delivered = true })
			}

			assert.Equal(test.expInterrupted, interrupted)
			assert.Equal(test.expInterrupted, delivered)
		})
	}
}

func TestDispatchMalformedCall(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	d, err := NewDriver(DriverConfig{Stdout: &bytes.Buffer{}})
	require.NoError(err)
	u, err := d.Create(ctx, model.DefaultSandboxConfig(), image.Default())
	require.NoError(err)
	hvm, err := u.Evolve(ctx)
	require.NoError(err)
	vm := hvm.(*VM)
	defer vm.Close()

	// A frame with a string that is not valid UTF-8.
	input := vm.region(vm.layout.Input)
	copy(input, []byte{0x03, 0x00, 0x00, 0x00, 0x62, 0xff, 0xfe})

	trap := vm.dispatch(ctx)
	require.NoError(trap)

	var res abi.FunctionResult
	require.NoError(abi.ReadFrame(vm.region(vm.layout.Output), &res))
	if assert.NotNil(res.Error) {
		assert.Equal(abi.ErrorCodeGuestError, res.Error.Code)
	}
	assert.False(vm.Poisoned())
}
