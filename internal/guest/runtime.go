package guest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// stackFrameSize is the stack budget accounted for every interpreter call frame.
const stackFrameSize = 128

// MinStackSize is the smallest stack region the interpreter runs on.
const MinStackSize = 16 * 1024

var (
	// ErrAlreadyInitialized is returned when the interpreter runtime is already live.
	ErrAlreadyInitialized = errors.New("interpreter runtime already initialized")
	// ErrGuardBusy is returned when the runtime guard can't be acquired.
	ErrGuardBusy = errors.New("interpreter runtime guard busy")
	// ErrReleased is returned when a released runtime handle is used.
	ErrReleased = errors.New("interpreter runtime released")
)

// Runtime is the handle of the live interpreter. Only one exists per guest at
// a time, it's obtained with a successful initialization and it's released
// with Deinit.
type Runtime struct {
	p   *Program
	vm  *goja.Runtime
	ctx context.Context
}

// initRuntime initializes the interpreter runtime singleton.
func (p *Program) initRuntime() (*Runtime, error) {
	if !p.guard.TryLock() {
		return nil, ErrGuardBusy
	}
	defer p.guard.Unlock()

	globals := p.env.Globals()
	if globals[globalLiveFlag] != 0 {
		return nil, ErrAlreadyInitialized
	}

	maxFrames, err := p.verifyStack()
	if err != nil {
		return nil, err
	}

	heap := p.env.Memory(p.env.Layout().Heap)
	if !heapPrepared(heap) {
		if err := prepareHeap(heap); err != nil {
			return nil, err
		}
		p.heapAllocations++
	}

	r := &Runtime{p: p, vm: goja.New(), ctx: context.Background()}
	r.vm.SetMaxCallStackSize(maxFrames)
	if err := r.setupGlobals(); err != nil {
		return nil, fmt.Errorf("could not setup interpreter globals: %w", err)
	}

	p.active.Store(r.vm)
	globals[globalLiveFlag] = 1

	return r, nil
}

// verifyStack checks the configured stack region is intact and returns the
// interpreter call depth it allows.
func (p *Program) verifyStack() (int, error) {
	region := p.env.Layout().Stack
	if region.Size < MinStackSize {
		return 0, fmt.Errorf("stack region of %d bytes is smaller than %d bytes", region.Size, MinStackSize)
	}

	stack := p.env.Memory(region)
	if !bytes.Equal(stack[:len(stackCanary)], stackCanary[:]) {
		return 0, fmt.Errorf("stack region boundary corrupted")
	}

	return int(region.Size / stackFrameSize), nil
}

func (r *Runtime) setupGlobals() error {
	printFn := func(call goja.FunctionCall) goja.Value {
		args := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.String())
		}
		r.p.PrintString(r.ctx, strings.Join(args, " "))
		r.p.PrintChar(r.ctx, '\n')
		return goja.Undefined()
	}

	console := r.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(name, printFn); err != nil {
			return err
		}
	}

	if err := r.vm.Set("print", printFn); err != nil {
		return err
	}
	return r.vm.Set("console", console)
}

// Exec runs a script on the interpreter. Script errors are reported through the
// print relay, the returned error is only for a released handle or an
// interrupted execution.
func (r *Runtime) Exec(ctx context.Context, code string) error {
	if r.vm == nil {
		return ErrReleased
	}

	src, err := stageScript(r.p.env.Memory(r.p.env.Layout().Heap), code)
	if err != nil {
		r.p.PrintString(ctx, "MemoryError: "+err.Error())
		r.p.PrintChar(ctx, '\n')
		return nil
	}

	r.ctx = ctx
	defer func() { r.ctx = context.Background() }()

	_, err = r.vm.RunString(src)
	if err != nil {
		var ierr *goja.InterruptedError
		if errors.As(err, &ierr) {
			return err
		}
		r.p.PrintString(ctx, err.Error())
		r.p.PrintChar(ctx, '\n')
	}

	return nil
}

// Deinit releases the runtime, the heap buffer is kept for the next runtime.
func (r *Runtime) Deinit() {
	if r.vm == nil {
		return
	}

	r.p.guard.Lock()
	defer r.p.guard.Unlock()

	r.p.env.Globals()[globalLiveFlag] = 0
	r.p.active.Store(nil)
	r.vm = nil
}
