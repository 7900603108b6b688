package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/model"
)

func TestLoadInterpreterTwiceOnTheSameContext(t *testing.T) {
	tests := map[string]struct {
		builder func() *Builder
	}{
		"The emulated runtime guest guard should reject a second interpreter.": {
			builder: NewBuilder,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			proto, err := test.builder().Build(ctx)
			require.NoError(err)
			rt, err := proto.LoadRuntime(ctx)
			require.NoError(err)

			// A second handle over the same isolated context, ownership rules
			// make this impossible from outside the package.
			dup := newRuntimeSandbox(rt.inst)

			loaded, err := rt.LoadInterpreter(ctx)
			require.NoError(err)
			defer loaded.Close()

			_, err = dup.LoadInterpreter(ctx)
			assert.True(errors.Is(err, model.ErrAlreadyInitialized), "got: %v", err)

			// The first interpreter keeps working.
			ok, err := loaded.RunScript(ctx, `1 + 1`)
			assert.NoError(err)
			assert.True(ok)
		})
	}
}
