package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/metrics"
	"github.com/slok/scriptbox/internal/model"
)

// Lifecycle transitions.
const (
	transitionLoadRuntime     = "load_runtime"
	transitionLoadInterpreter = "load_interpreter"
	transitionUnload          = "unload"
)

// instance is the isolated context shared by all the state objects that
// represent it along its lifetime.
type instance struct {
	vm       hypervisor.VM
	snapshot *hypervisor.Snapshot
	image    ocispec.Descriptor
	cfg      model.SandboxConfig
	logger   log.Logger
	metrics  metrics.Recorder

	poisonOnce sync.Once
}

func (i *instance) poisoned() bool {
	return i.vm.Poisoned()
}

// call calls a guest function expecting a bool result.
func (i *instance) call(ctx context.Context, name string, args ...abi.Value) (bool, error) {
	if i.poisoned() {
		return false, model.ErrPoisoned
	}

	if i.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	v, err := i.vm.Call(ctx, name, abi.TypeBool, args...)
	i.metrics.ObserveGuestCall(ctx, name, err == nil, time.Since(start))
	if i.poisoned() {
		i.poisonOnce.Do(func() {
			i.logger.Errorf("Isolated context poisoned during %q call", name)
			i.metrics.IncPoisoned(ctx)
		})
	}
	if err != nil {
		return false, mapCallError(err)
	}

	b, err := v.AsBool()
	if err != nil {
		return false, fmt.Errorf("unexpected %q result: %w: %w", name, model.ErrCallDispatch, err)
	}

	return b, nil
}

// mapCallError maps guest reported errors into the sandbox error kinds.
func mapCallError(err error) error {
	var gerr *abi.GuestError
	if errors.As(err, &gerr) && gerr.Code == abi.ErrorCodeAlreadyInitialized {
		return fmt.Errorf("%w: %w", model.ErrAlreadyInitialized, err)
	}

	if errors.Is(err, model.ErrPoisoned) || errors.Is(err, model.ErrCallDispatch) {
		return err
	}

	return fmt.Errorf("%w: %w", model.ErrCallDispatch, err)
}

func (i *instance) observe(ctx context.Context, transition string, start time.Time, err error) {
	i.metrics.ObserveTransition(ctx, transition, err == nil, time.Since(start))
}

// ProtoSandbox is an isolated context that has not started running the guest image.
type ProtoSandbox struct {
	vm         hypervisor.UninitializedVM
	guestImage []byte
	inst       *instance

	mu       sync.Mutex
	consumed bool
}

// LoadRuntime boots the guest image and captures the clean snapshot. The
// ProtoSandbox is consumed regardless of the result.
func (p *ProtoSandbox) LoadRuntime(ctx context.Context) (_ *RuntimeSandbox, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.consumed {
		return nil, fmt.Errorf("proto sandbox: %w", model.ErrConsumed)
	}
	p.consumed = true

	start := time.Now()
	defer func() { p.inst.observe(ctx, transitionLoadRuntime, start, err) }()

	vm, err := p.vm.Evolve(ctx)
	if err != nil {
		_ = p.vm.Close()
		if !errors.Is(err, model.ErrBoot) {
			err = fmt.Errorf("%w: %w", model.ErrBoot, err)
		}
		return nil, fmt.Errorf("could not boot guest: %w", err)
	}

	manifest, err := image.Parse(p.guestImage)
	if err != nil {
		_ = vm.Close()
		return nil, fmt.Errorf("could not describe guest image: %w: %w", model.ErrBoot, err)
	}

	snap, err := vm.Snapshot(ctx)
	if err != nil {
		_ = vm.Close()
		return nil, fmt.Errorf("could not capture clean snapshot: %w: %w", model.ErrBoot, err)
	}

	p.inst.vm = vm
	p.inst.snapshot = snap
	p.inst.image = image.Describe(p.guestImage, manifest)
	p.inst.logger.WithValues(log.Kv{
		"snapshot": snap.Digest(),
		"image":    p.inst.image.Digest.String(),
	}).Infof("Runtime loaded")

	return newRuntimeSandbox(p.inst), nil
}

// Close releases the isolated context if it has not been booted.
func (p *ProtoSandbox) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.consumed {
		return nil
	}
	p.consumed = true

	return p.vm.Close()
}

// RuntimeSandbox is a booted isolated context with its clean snapshot.
type RuntimeSandbox struct {
	inst *instance

	mu       sync.Mutex
	consumed bool
}

func newRuntimeSandbox(inst *instance) *RuntimeSandbox {
	return &RuntimeSandbox{inst: inst}
}

// LoadInterpreter initializes the guest interpreter. The RuntimeSandbox is
// consumed only on success, after an initialization failure it can be retried.
func (r *RuntimeSandbox) LoadInterpreter(ctx context.Context) (_ *LoadedSandbox, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed {
		return nil, fmt.Errorf("runtime sandbox: %w", model.ErrConsumed)
	}
	if r.inst.poisoned() {
		return nil, model.ErrPoisoned
	}

	start := time.Now()
	defer func() { r.inst.observe(ctx, transitionLoadInterpreter, start, err) }()

	// The guest guard is the source of truth of a live interpreter, another
	// sandbox object over the same context could already own it.
	live, err := r.inst.call(ctx, abi.FuncInterpreterStatus)
	if err != nil {
		return nil, fmt.Errorf("could not get interpreter status: %w", err)
	}
	if live {
		return nil, fmt.Errorf("interpreter is live on the isolated context: %w", model.ErrAlreadyInitialized)
	}

	ok, err := r.inst.call(ctx, abi.FuncInitializeInterpreter)
	if err != nil {
		return nil, fmt.Errorf("could not initialize interpreter: %w", err)
	}
	if !ok {
		return nil, model.ErrInitializationFailure
	}

	r.consumed = true
	r.inst.logger.Debugf("Interpreter loaded")

	return &LoadedSandbox{inst: r.inst}, nil
}

// Snapshot returns the clean snapshot information.
func (r *RuntimeSandbox) Snapshot() model.SnapshotInfo {
	info := r.inst.snapshot.Info()
	info.Image = r.inst.image.Digest.String()
	return info
}

// Image returns the descriptor of the guest image the runtime booted.
func (r *RuntimeSandbox) Image() ocispec.Descriptor {
	return r.inst.image
}

// Poisoned returns true if the isolated context faulted.
func (r *RuntimeSandbox) Poisoned() bool {
	return r.inst.poisoned()
}

// Close releases the isolated context, it's a no-op after a transition.
func (r *RuntimeSandbox) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed {
		return nil
	}
	r.consumed = true

	return r.inst.vm.Close()
}

// LoadedSandbox is an isolated context with a live interpreter.
type LoadedSandbox struct {
	inst *instance

	mu       sync.Mutex
	consumed bool
}

// RunScript runs a script on the interpreter. The result is true when the
// script was dispatched to a live interpreter, it doesn't say if the script
// failed: script errors are only visible through the printed output.
func (l *LoadedSandbox) RunScript(ctx context.Context, code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumed {
		return false, fmt.Errorf("loaded sandbox: %w", model.ErrConsumed)
	}

	ok, err := l.inst.call(ctx, abi.FuncExecuteScript, abi.String(code))
	if err != nil {
		return false, fmt.Errorf("could not run script: %w", err)
	}

	return ok, nil
}

// Unload restores the clean snapshot, dropping the interpreter and every
// effect of the scripts it ran. The LoadedSandbox is consumed regardless of
// the result, on failure the isolated context is released.
func (l *LoadedSandbox) Unload(ctx context.Context) (_ *RuntimeSandbox, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumed {
		return nil, fmt.Errorf("loaded sandbox: %w", model.ErrConsumed)
	}
	l.consumed = true

	defer func() {
		if err != nil {
			_ = l.inst.vm.Close()
		}
	}()

	if l.inst.poisoned() {
		return nil, model.ErrPoisoned
	}

	start := time.Now()
	defer func() { l.inst.observe(ctx, transitionUnload, start, err) }()

	if err := l.inst.vm.Restore(ctx, l.inst.snapshot); err != nil {
		if errors.Is(err, model.ErrPoisoned) || errors.Is(err, model.ErrSnapshotRestore) {
			return nil, fmt.Errorf("could not restore clean snapshot: %w", err)
		}
		return nil, fmt.Errorf("could not restore clean snapshot: %w: %w", model.ErrSnapshotRestore, err)
	}

	l.inst.logger.Debugf("Interpreter unloaded")

	return newRuntimeSandbox(l.inst), nil
}

// Poisoned returns true if the isolated context faulted.
func (l *LoadedSandbox) Poisoned() bool {
	return l.inst.poisoned()
}

// Close releases the isolated context, it's a no-op after a transition.
func (l *LoadedSandbox) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumed {
		return nil
	}
	l.consumed = true

	return l.inst.vm.Close()
}
