// Package guest is the jshost guest program, a JavaScript interpreter that
// runs inside an isolated context and is driven with guest calls.
package guest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/hypervisor"
)

// Entrypoint is the guest image entrypoint of this program.
const Entrypoint = "jshost"

// Program is the jshost guest program.
type Program struct {
	env   hypervisor.Env
	guard SpinLock

	rt              *Runtime
	active          atomic.Pointer[goja.Runtime]
	heapAllocations int
}

// New returns a new jshost program instance.
func New(env hypervisor.Env) hypervisor.Program {
	return NewProgram(env)
}

// NewProgram returns a new jshost program instance.
func NewProgram(env hypervisor.Env) *Program {
	return &Program{env: env}
}

// Main prepares the guest memory for the program.
func (p *Program) Main(_ context.Context) error {
	globals := p.env.Globals()
	if len(globals) < globalsSize {
		return fmt.Errorf("globals scratch of %d bytes is smaller than %d bytes", len(globals), globalsSize)
	}
	copy(globals[globalMarker:], imageMarker[:])

	stack := p.env.Memory(p.env.Layout().Stack)
	if len(stack) < len(stackCanary) {
		return fmt.Errorf("stack region too small")
	}
	copy(stack, stackCanary[:])

	return nil
}

// Functions returns the guest functions.
func (p *Program) Functions() []hypervisor.GuestFunction {
	return []hypervisor.GuestFunction{
		{
			Name:   abi.FuncInitializeInterpreter,
			Return: abi.TypeBool,
			Func: func(ctx context.Context, _ []abi.Value) (abi.Value, error) {
				ok, err := p.InitializeInterpreter()
				return abi.Bool(ok), err
			},
		},
		{
			Name:   abi.FuncExecuteScript,
			Params: []abi.Type{abi.TypeString},
			Return: abi.TypeBool,
			Func: func(ctx context.Context, args []abi.Value) (abi.Value, error) {
				ok, err := p.ExecuteScript(ctx, args[0].String)
				return abi.Bool(ok), err
			},
		},
		{
			Name:   abi.FuncInterpreterStatus,
			Return: abi.TypeBool,
			Func: func(ctx context.Context, _ []abi.Value) (abi.Value, error) {
				return abi.Bool(p.InterpreterStatus()), nil
			},
		},
	}
}

// InterpreterStatus returns true if the interpreter runtime guard is set.
func (p *Program) InterpreterStatus() bool {
	p.guard.Lock()
	defer p.guard.Unlock()

	return p.env.Globals()[globalLiveFlag] != 0
}

// InitializeInterpreter initializes the interpreter runtime. If this program
// already holds the runtime nothing is done. It returns false when the runtime
// could not be bootstrapped.
func (p *Program) InitializeInterpreter() (bool, error) {
	if p.rt != nil {
		return true, nil
	}

	rt, err := p.initRuntime()
	if err != nil {
		if errors.Is(err, ErrAlreadyInitialized) {
			return false, abi.NewGuestError(abi.ErrorCodeAlreadyInitialized, "%s", err)
		}
		return false, nil
	}
	p.rt = rt

	return true, nil
}

// ExecuteScript runs a script, it returns false when there is no live interpreter.
func (p *Program) ExecuteScript(ctx context.Context, code string) (bool, error) {
	if p.rt == nil {
		return false, nil
	}

	if err := p.rt.Exec(ctx, code); err != nil {
		if errors.Is(err, ErrReleased) {
			return false, nil
		}
		return false, abi.NewGuestError(abi.ErrorCodeGuestError, "%s", err)
	}

	return true, nil
}

// Interrupt stops the running script.
func (p *Program) Interrupt(reason any) {
	if vm := p.active.Load(); vm != nil {
		vm.Interrupt(reason)
	}
}

// Checkpointable returns an error while the interpreter runtime is live, its
// state lives outside guest memory.
func (p *Program) Checkpointable() error {
	if p.rt != nil {
		return fmt.Errorf("interpreter runtime is live")
	}
	return nil
}

// Shutdown releases the interpreter runtime.
func (p *Program) Shutdown() {
	if p.rt != nil {
		p.rt.Deinit()
		p.rt = nil
	}
}

// HeapAllocations returns the number of times this program prepared the heap buffer.
func (p *Program) HeapAllocations() int {
	return p.heapAllocations
}
