// Package fake is a fake isolation runtime. It simulates the guest interpreter
// functions without any guest memory so lifecycle logic can be tested in isolation.
package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/model"
)

// CallHandler handles the guest calls of a fake VM. Returning handled false
// uses the default interpreter simulation.
type CallHandler func(vm *VM, name string, args []abi.Value) (v abi.Value, handled bool, err error)

// DriverConfig is the configuration for the fake driver.
type DriverConfig struct {
	// Checks are the preflight results, by default a single OK check.
	Checks      []model.CheckResult
	CreateErr   error
	EvolveErr   error
	SnapshotErr error
	RestoreErr  error
	CallHandler CallHandler
	Logger      log.Logger
}

func (c *DriverConfig) defaults() error {
	if c.Checks == nil {
		c.Checks = []model.CheckResult{{ID: "fake_runtime", Status: model.CheckStatusOK, Message: "fake isolation runtime"}}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hypervisor.Fake"})

	return nil
}

// Driver is a fake implementation of hypervisor.Driver.
type Driver struct {
	cfg    DriverConfig
	vms    []*VM
	mu     sync.Mutex
	logger log.Logger
}

// NewDriver creates a new fake driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{cfg: cfg, logger: cfg.Logger}, nil
}

func (d *Driver) Check(ctx context.Context) []model.CheckResult {
	return d.cfg.Checks
}

func (d *Driver) Create(ctx context.Context, cfg model.SandboxConfig, guestImage []byte) (hypervisor.UninitializedVM, error) {
	if d.cfg.CreateErr != nil {
		return nil, d.cfg.CreateErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	vm := &VM{
		id:        ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		cfg:       cfg,
		driver:    d,
		hostFuncs: map[string]hypervisor.HostFunction{},
	}
	d.vms = append(d.vms, vm)
	d.logger.Debugf("Fake VM %s created", vm.id)

	return vm, nil
}

// VMs returns the VMs created by the driver.
func (d *Driver) VMs() []*VM {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*VM{}, d.vms...)
}

// VM is a fake VM, it implements both the uninitialized and the booted VM.
type VM struct {
	id        string
	cfg       model.SandboxConfig
	driver    *Driver
	hostFuncs map[string]hypervisor.HostFunction

	mu       sync.Mutex
	evolved  bool
	live     bool
	calls    []string
	restores int
	snapSeq  uint64
	closed   bool
	poisoned atomic.Bool
}

func (v *VM) ID() string { return v.id }

// Config returns the configuration the VM was created with.
func (v *VM) Config() model.SandboxConfig { return v.cfg }

func (v *VM) RegisterHostFunction(name string, fn hypervisor.HostFunction) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.hostFuncs[name] = fn
	return nil
}

// HostFunctions returns the registered host function names.
func (v *VM) HostFunctions() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.hostFuncs))
	for n := range v.hostFuncs {
		names = append(names, n)
	}
	return names
}

func (v *VM) Evolve(ctx context.Context) (hypervisor.VM, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.evolved {
		return nil, model.ErrConsumed
	}
	v.evolved = true

	if v.driver.cfg.EvolveErr != nil {
		return nil, v.driver.cfg.EvolveErr
	}

	return v, nil
}

func (v *VM) Call(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error) {
	if v.Poisoned() {
		return abi.Value{}, model.ErrPoisoned
	}

	v.mu.Lock()
	v.calls = append(v.calls, name)
	v.mu.Unlock()

	if h := v.driver.cfg.CallHandler; h != nil {
		val, handled, err := h(v, name, args)
		if handled {
			return val, err
		}
	}

	switch name {
	case abi.FuncInterpreterStatus:
		v.mu.Lock()
		defer v.mu.Unlock()
		return abi.Bool(v.live), nil
	case abi.FuncInitializeInterpreter:
		v.mu.Lock()
		defer v.mu.Unlock()
		v.live = true
		return abi.Bool(true), nil
	case abi.FuncExecuteScript:
		v.mu.Lock()
		live := v.live
		v.mu.Unlock()
		if !live {
			return abi.Bool(false), nil
		}
		// Without a print sink the script output is dropped.
		if !v.hasHostFunction(abi.FuncHostPrint) {
			return abi.Bool(true), nil
		}
		if _, err := v.CallHost(ctx, abi.FuncHostPrint, args...); err != nil {
			return abi.Value{}, err
		}
		return abi.Bool(true), nil
	}

	gerr := abi.NewGuestError(abi.ErrorCodeFunctionNotFound, "function %q not found", name)
	return abi.Value{}, fmt.Errorf("%w: %w", model.ErrCallDispatch, gerr)
}

func (v *VM) hasHostFunction(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.hostFuncs[name]
	return ok
}

// CallHost calls a registered host function like a guest would.
func (v *VM) CallHost(ctx context.Context, name string, args ...abi.Value) (abi.Value, error) {
	v.mu.Lock()
	fn, ok := v.hostFuncs[name]
	v.mu.Unlock()
	if !ok {
		return abi.Value{}, abi.NewGuestError(abi.ErrorCodeFunctionNotFound, "host function %q not found", name)
	}
	return fn.Func(ctx, args)
}

func (v *VM) Snapshot(ctx context.Context) (*hypervisor.Snapshot, error) {
	if v.driver.cfg.SnapshotErr != nil {
		return nil, v.driver.cfg.SnapshotErr
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.snapSeq++
	return hypervisor.NewSnapshot(v.id, v.snapSeq, fmt.Sprintf("fake:%d", v.cfg.HeapSize), 0, v.live), nil
}

func (v *VM) Restore(ctx context.Context, s *hypervisor.Snapshot) error {
	if v.Poisoned() {
		return model.ErrPoisoned
	}
	if v.driver.cfg.RestoreErr != nil {
		return v.driver.cfg.RestoreErr
	}
	if s == nil || s.VMID() != v.id {
		return model.ErrSnapshotRestore
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	live, _ := s.State().(bool)
	v.live = live
	v.restores++

	return nil
}

// Poison forces a fault on the VM.
func (v *VM) Poison() { v.poisoned.Store(true) }

func (v *VM) Poisoned() bool { return v.poisoned.Load() }

// Calls returns the guest calls made on the VM.
func (v *VM) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return append([]string{}, v.calls...)
}

// Restores returns the number of restores done on the VM.
func (v *VM) Restores() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.restores
}

// Closed returns true if the VM has been closed.
func (v *VM) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.closed
}

func (v *VM) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	return nil
}
