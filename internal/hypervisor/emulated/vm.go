package emulated

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/model"
)

// UninitializedVM is a VM that has not booted the guest image yet.
type UninitializedVM struct {
	id        string
	cfg       model.SandboxConfig
	image     []byte
	driver    *Driver
	hostFuncs map[string]hypervisor.HostFunction
	logger    log.Logger

	mu       sync.Mutex
	consumed bool
}

func (u *UninitializedVM) ID() string { return u.id }

// RegisterHostFunction registers a function the guest can call.
func (u *UninitializedVM) RegisterHostFunction(name string, fn hypervisor.HostFunction) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.consumed {
		return fmt.Errorf("vm already evolved: %w", model.ErrConsumed)
	}
	if name == "" || fn.Func == nil {
		return fmt.Errorf("host function requires a name and a function: %w", model.ErrNotValid)
	}

	u.hostFuncs[name] = fn
	u.logger.Debugf("Host function %q registered", name)

	return nil
}

// Evolve boots the guest image: the guest memory is allocated with the
// configured layout, the image entrypoint is loaded and its main runs.
func (u *UninitializedVM) Evolve(ctx context.Context) (vm hypervisor.VM, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.consumed {
		return nil, fmt.Errorf("vm already evolved: %w", model.ErrConsumed)
	}
	u.consumed = true

	layout, err := newLayout(u.cfg, u.driver.maxMemory)
	if err != nil {
		return nil, fmt.Errorf("invalid guest memory layout: %w: %w", model.ErrBoot, err)
	}

	manifest, err := image.Parse(u.image)
	if err != nil {
		return nil, fmt.Errorf("could not load guest image: %w: %w", model.ErrBoot, err)
	}

	factory, ok := u.driver.programs[manifest.Entrypoint]
	if !ok {
		return nil, fmt.Errorf("unknown guest image entrypoint %q: %w", manifest.Entrypoint, model.ErrBoot)
	}

	if manifest.MinStackSize > 0 && layout.Stack.Size < manifest.MinStackSize {
		return nil, fmt.Errorf("stack of %d bytes, guest image requires %d bytes: %w", layout.Stack.Size, manifest.MinStackSize, model.ErrBoot)
	}

	for _, hf := range manifest.HostFunctions {
		if _, ok := u.hostFuncs[hf]; !ok {
			return nil, fmt.Errorf("guest image requires missing host function %q: %w", hf, model.ErrBoot)
		}
	}

	if u.cfg.DebugPort != nil {
		u.logger.Warningf("Debug port %d requested, the emulated runtime has no debugger support", *u.cfg.DebugPort)
	}

	v := &VM{
		id:        u.id,
		layout:    layout,
		mem:       make([]byte, layout.Size()),
		factory:   factory,
		hostFuncs: u.hostFuncs,
		regs:      registers{StackPointer: layout.Stack.End()},
		logger:    u.logger,
	}
	writePEB(v.mem, layout)
	v.load()

	for _, f := range manifest.Functions {
		if _, ok := v.funcs[f]; !ok {
			v.program.Shutdown()
			return nil, fmt.Errorf("guest program doesn't export %q: %w", f, model.ErrBoot)
		}
	}

	if err := v.runMain(ctx); err != nil {
		v.program.Shutdown()
		return nil, fmt.Errorf("guest main failed: %w: %w", model.ErrBoot, err)
	}

	u.logger.WithValues(log.Kv{"memory": layout.Size(), "entrypoint": manifest.Entrypoint}).Infof("VM evolved")

	return v, nil
}

// Close releases the VM.
func (u *UninitializedVM) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.consumed = true
	return nil
}

// registers is the guest execution state that lives outside guest memory.
type registers struct {
	StackPointer uint64
	Calls        uint64
}

// VM is a booted emulated VM.
type VM struct {
	id        string
	layout    hypervisor.Layout
	mem       []byte
	factory   hypervisor.ProgramFactory
	program   hypervisor.Program
	funcs     map[string]hypervisor.GuestFunction
	hostFuncs map[string]hypervisor.HostFunction
	regs      registers
	snapSeq   uint64
	logger    log.Logger

	mu       sync.Mutex
	closed   bool
	poisoned atomic.Bool
}

func (v *VM) ID() string { return v.id }

// Poisoned returns true if the VM faulted.
func (v *VM) Poisoned() bool { return v.poisoned.Load() }

func (v *VM) poison(reason string) {
	if v.poisoned.CompareAndSwap(false, true) {
		v.logger.Warningf("VM poisoned: %s", reason)
	}
}

// load instantiates the guest program on the current guest memory.
func (v *VM) load() {
	v.program = v.factory(guestEnv{vm: v})
	v.funcs = map[string]hypervisor.GuestFunction{}
	for _, f := range v.program.Functions() {
		v.funcs[f.Name] = f
	}
}

func (v *VM) runMain(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guest trapped: %v", r)
		}
	}()
	return v.program.Main(ctx)
}

func (v *VM) region(r hypervisor.Region) []byte {
	return v.mem[r.Offset:r.End():r.End()]
}

// Call calls a guest function. The call and its result cross the guest input
// and output buffers.
func (v *VM) Call(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return abi.Value{}, fmt.Errorf("vm closed: %w", model.ErrCallDispatch)
	}
	if v.Poisoned() {
		return abi.Value{}, model.ErrPoisoned
	}
	if err := ctx.Err(); err != nil {
		return abi.Value{}, fmt.Errorf("could not call %q: %w: %w", name, model.ErrCallDispatch, err)
	}

	input, output := v.region(v.layout.Input), v.region(v.layout.Output)
	defer clear(input)
	defer clear(output)

	call := abi.FunctionCall{Name: name, Params: args, Return: ret}
	if _, err := abi.WriteFrame(input, call); err != nil {
		return abi.Value{}, fmt.Errorf("could not write call %q: %w: %w", name, model.ErrCallDispatch, err)
	}

	// Watchdog, a done context interrupts the guest while the call runs. Once
	// delivered the guest state is unknown, even if the call ended right after.
	w := &watchdog{}
	stop := context.AfterFunc(ctx, func() {
		w.interrupt(func() { v.program.Interrupt(context.Cause(ctx)) })
	})
	trap := v.dispatch(ctx)
	interrupted := w.finish()
	stop()
	if interrupted {
		v.poison(fmt.Sprintf("call %q interrupted: %v", name, context.Cause(ctx)))
		return abi.Value{}, fmt.Errorf("call %q interrupted: %w: %w", name, model.ErrPoisoned, context.Cause(ctx))
	}

	if trap != nil {
		v.poison(trap.Error())
		return abi.Value{}, fmt.Errorf("call %q: %w: %w", name, model.ErrCallDispatch, trap)
	}

	var res abi.FunctionResult
	if err := abi.ReadFrame(output, &res); err != nil {
		return abi.Value{}, fmt.Errorf("could not read call %q result: %w: %w", name, model.ErrCallDispatch, err)
	}

	if res.Error != nil {
		return abi.Value{}, fmt.Errorf("call %q: %w: %w", name, model.ErrCallDispatch, res.Error)
	}

	if res.Value.Type != ret {
		gerr := abi.NewGuestError(abi.ErrorCodeIncorrectReturnType, "expected %s, got %s", ret, res.Value.Type)
		return abi.Value{}, fmt.Errorf("call %q: %w: %w", name, model.ErrCallDispatch, gerr)
	}

	return res.Value, nil
}

// dispatch is the guest side of a call: it reads the call from the input
// buffer, runs the function and writes the result in the output buffer. A
// malformed call is answered with an error result, a returned error is a trap.
func (v *VM) dispatch(ctx context.Context) (trap error) {
	defer func() {
		if r := recover(); r != nil {
			trap = fmt.Errorf("guest trapped: %v", r)
		}
	}()

	v.regs.Calls++

	var res abi.FunctionResult
	var call abi.FunctionCall
	err := abi.ReadFrame(v.region(v.layout.Input), &call)
	fn, ok := v.funcs[call.Name]
	switch {
	case err != nil:
		res.Error = abi.NewGuestError(abi.ErrorCodeGuestError, "malformed call: %s", err)
	case !ok:
		res.Error = abi.NewGuestError(abi.ErrorCodeFunctionNotFound, "function %q not found", call.Name)
	case fn.Return != call.Return:
		res.Error = abi.NewGuestError(abi.ErrorCodeIncorrectReturnType, "function %q returns %s, %s requested", call.Name, fn.Return, call.Return)
	default:
		if gerr := hypervisor.CheckTypes(fn.Params, call.Params); gerr != nil {
			res.Error = gerr
			break
		}

		val, err := fn.Func(ctx, call.Params)
		if err != nil {
			res.Error = toGuestError(err, abi.ErrorCodeGuestError)
			break
		}
		res.Value = val
	}

	_, err = abi.WriteFrame(v.region(v.layout.Output), res)
	if errors.Is(err, abi.ErrInvalidString) {
		res = abi.FunctionResult{Error: abi.NewGuestError(abi.ErrorCodeGuestError, "function %q result: %s", call.Name, err)}
		_, err = abi.WriteFrame(v.region(v.layout.Output), res)
	}
	if err != nil {
		return fmt.Errorf("result doesn't fit in the output buffer: %w", err)
	}

	return nil
}

func toGuestError(err error, code abi.ErrorCode) *abi.GuestError {
	var gerr *abi.GuestError
	if errors.As(err, &gerr) {
		return gerr
	}
	return abi.NewGuestError(code, "%s", err)
}

// callHost is the host side of a guest to host call, the call crosses the
// output buffer and the result comes back in the input buffer.
func (v *VM) callHost(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error) {
	output, input := v.region(v.layout.Output), v.region(v.layout.Input)

	call := abi.FunctionCall{Name: name, Params: args, Return: ret}
	if _, err := abi.WriteFrame(output, call); err != nil {
		return abi.Value{}, err
	}

	// Host.
	var res abi.FunctionResult
	var hcall abi.FunctionCall
	if err := abi.ReadFrame(output, &hcall); err != nil {
		return abi.Value{}, err
	}
	abi.ClearFrame(output)

	fn, ok := v.hostFuncs[hcall.Name]
	switch {
	case !ok:
		res.Error = abi.NewGuestError(abi.ErrorCodeFunctionNotFound, "host function %q not found", hcall.Name)
	case fn.Return != hcall.Return:
		res.Error = abi.NewGuestError(abi.ErrorCodeIncorrectReturnType, "host function %q returns %s, %s requested", hcall.Name, fn.Return, hcall.Return)
	default:
		if gerr := hypervisor.CheckTypes(fn.Params, hcall.Params); gerr != nil {
			res.Error = gerr
			break
		}
		val, err := fn.Func(ctx, hcall.Params)
		if err != nil {
			v.logger.Warningf("Host function %q failed: %s", hcall.Name, err)
			res.Error = toGuestError(err, abi.ErrorCodeHostFunctionError)
			break
		}
		res.Value = val
	}

	if _, err := abi.WriteFrame(input, res); err != nil {
		return abi.Value{}, err
	}

	// Guest.
	var gres abi.FunctionResult
	err := abi.ReadFrame(input, &gres)
	abi.ClearFrame(input)
	if err != nil {
		return abi.Value{}, err
	}
	if gres.Error != nil {
		return abi.Value{}, gres.Error
	}

	return gres.Value, nil
}

// Close releases the VM.
func (v *VM) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.program.Shutdown()
	v.mem = nil
	v.logger.Debugf("VM closed")

	return nil
}

// guestEnv is the environment guest programs see.
type guestEnv struct {
	vm *VM
}

func (e guestEnv) Layout() hypervisor.Layout { return e.vm.layout }

func (e guestEnv) Memory(r hypervisor.Region) []byte { return e.vm.region(r) }

func (e guestEnv) Globals() []byte {
	return e.vm.mem[pebHeaderSize:pebSize:pebSize]
}

func (e guestEnv) CallHost(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error) {
	return e.vm.callHost(ctx, name, ret, args...)
}

// watchdog tracks if an interrupt reached a running call.
type watchdog struct {
	mu          sync.Mutex
	finished    bool
	interrupted bool
}

// interrupt runs f unless the call already finished.
func (w *watchdog) interrupt(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return
	}
	w.interrupted = true
	f()
}

// finish marks the call as finished and returns true if it was interrupted.
func (w *watchdog) finish() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.finished = true
	return w.interrupted
}
