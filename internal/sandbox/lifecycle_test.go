package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/sandbox"
)

// Lifecycle tests with the default emulated runtime and JavaScript guest.

func TestSnapshotsAreDeterministic(t *testing.T) {
	ctx := context.Background()
	var digests []string

	for i := 0; i < 2; i++ {
		proto, err := sandbox.NewBuilder().Build(ctx)
		require.NoError(t, err)
		rt, err := proto.LoadRuntime(ctx)
		require.NoError(t, err)
		defer rt.Close()

		digests = append(digests, rt.Snapshot().Digest)
	}

	assert.NotEmpty(t, digests[0])
	assert.Equal(t, digests[0], digests[1])
}

func TestUnloadGivesACleanInterpreter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	out := &output{}

	loaded := loadSandbox(t, sandbox.NewBuilder().WithHostPrint(out.print))

	ok, err := loaded.RunScript(ctx, `x = 1 + 1`)
	require.NoError(err)
	assert.True(ok)
	ok, err = loaded.RunScript(ctx, `print(x)`)
	require.NoError(err)
	assert.True(ok)
	assert.Equal("2\n", out.String())

	rt, err := loaded.Unload(ctx)
	require.NoError(err)
	loaded, err = rt.LoadInterpreter(ctx)
	require.NoError(err)
	defer loaded.Close()
	out.Reset()

	ok, err = loaded.RunScript(ctx, `print(typeof x)`)
	require.NoError(err)
	assert.True(ok)
	assert.Equal("undefined\n", out.String())

	// Referencing it is a script error, not a host error.
	out.Reset()
	ok, err = loaded.RunScript(ctx, `print(x)`)
	require.NoError(err)
	assert.True(ok)
	assert.Contains(out.String(), "ReferenceError")
}

func TestManyCleanCycles(t *testing.T) {
	ctx := context.Background()
	out := &output{}

	proto, err := sandbox.NewBuilder().WithHostPrint(out.print).Build(ctx)
	require.NoError(t, err)
	rt, err := proto.LoadRuntime(ctx)
	require.NoError(t, err)
	snap := rt.Snapshot()

	for i := 0; i < 5; i++ {
		loaded, err := rt.LoadInterpreter(ctx)
		require.NoError(t, err)
		_, err = loaded.RunScript(ctx, `globalThis.counter = (globalThis.counter || 0) + 1; print(counter)`)
		require.NoError(t, err)
		rt, err = loaded.Unload(ctx)
		require.NoError(t, err)
	}
	defer rt.Close()

	assert.Equal(t, "1\n1\n1\n1\n1\n", out.String())
	assert.Equal(t, snap, rt.Snapshot())
}

func TestRunScriptReturnsTrueOnScriptErrors(t *testing.T) {
	tests := map[string]struct {
		script string
		expOut string
	}{
		"Invalid syntax should still be reported as dispatched.": {
			script: `this is ( not valid`,
			expOut: "SyntaxError",
		},

		"A thrown error should still be reported as dispatched.": {
			script: `throw new Error("boom")`,
			expOut: "Error: boom",
		},

		"Unbounded recursion should still be reported as dispatched.": {
			script: `function f() { return f() }; f()`,
			expOut: "",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			out := &output{}
			loaded := loadSandbox(t, sandbox.NewBuilder().WithHostPrint(out.print))

			ok, err := loaded.RunScript(context.Background(), test.script)

			require.NoError(t, err)
			assert.True(t, ok)
			assert.Contains(t, out.String(), test.expOut)
			assert.False(t, loaded.Poisoned())
		})
	}
}

func TestBootFailures(t *testing.T) {
	tests := map[string]struct {
		builder func() *sandbox.Builder
	}{
		"A zero stack size should fail the boot.": {
			builder: func() *sandbox.Builder { return sandbox.NewBuilder().WithStackSize(0) },
		},

		"An absurd heap size should fail the boot.": {
			builder: func() *sandbox.Builder { return sandbox.NewBuilder().WithHeapSize(1 << 40) },
		},

		"A malformed guest image should fail the boot.": {
			builder: func() *sandbox.Builder { return sandbox.NewBuilder().WithGuestImage([]byte{0x7f, 'E', 'L', 'F'}) },
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			proto, err := test.builder().Build(ctx)
			require.NoError(t, err)

			_, err = proto.LoadRuntime(ctx)
			assert.True(t, errors.Is(err, model.ErrBoot), "got: %v", err)
		})
	}
}

func TestTimeoutPoisonsTheSandbox(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	loaded := loadSandbox(t, sandbox.NewBuilder().WithCallTimeout(50*time.Millisecond))

	ok, err := loaded.RunScript(ctx, `for (;;) {}`)
	assert.False(ok)
	assert.True(errors.Is(err, model.ErrPoisoned), "got: %v", err)
	assert.True(loaded.Poisoned())

	_, err = loaded.RunScript(ctx, `1`)
	assert.True(errors.Is(err, model.ErrPoisoned))

	_, err = loaded.Unload(ctx)
	assert.True(errors.Is(err, model.ErrPoisoned))
}

func TestInvalidScriptTextDoesNotPoison(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	out := &output{}

	loaded := loadSandbox(t, sandbox.NewBuilder().WithHostPrint(out.print))

	ok, err := loaded.RunScript(ctx, "print('a')\xff")
	assert.False(ok)
	assert.True(errors.Is(err, model.ErrCallDispatch), "got: %v", err)
	assert.False(errors.Is(err, model.ErrPoisoned))
	assert.False(loaded.Poisoned())

	ok, err = loaded.RunScript(ctx, `print(1)`)
	require.NoError(err)
	assert.True(ok)
	assert.Equal("1\n", out.String())

	rt, err := loaded.Unload(ctx)
	require.NoError(err)
	assert.NoError(rt.Close())
}
