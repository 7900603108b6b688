// Package sandbox has the sandbox lifecycle.
//
// A Builder is consumed into a ProtoSandbox, an isolated context that has
// not started yet. Loading the runtime boots the guest and captures the clean
// snapshot (RuntimeSandbox), loading the interpreter gives a LoadedSandbox
// that runs scripts, and unloading restores the clean snapshot giving back a
// RuntimeSandbox. Every transition consumes its receiver.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/hypervisor/emulated"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/metrics"
	"github.com/slok/scriptbox/internal/model"
)

// HostPrintFunc receives the text printed by the guest. The returned status
// is handed back to the guest.
type HostPrintFunc func(text string) (int, error)

// Builder stages the configuration of a sandbox.
type Builder struct {
	cfg        model.SandboxConfig
	hostPrint  HostPrintFunc
	driver     hypervisor.Driver
	guestImage []byte
	logger     log.Logger
	metrics    metrics.Recorder

	mu       sync.Mutex
	consumed bool
}

// NewBuilder returns a builder with the default configuration.
func NewBuilder() *Builder {
	return &Builder{cfg: model.DefaultSandboxConfig()}
}

// WithStackSize sets the guest stack size in bytes.
func (b *Builder) WithStackSize(size uint64) *Builder {
	b.cfg.StackSize = size
	return b
}

// WithHeapSize sets the guest heap size in bytes.
func (b *Builder) WithHeapSize(size uint64) *Builder {
	b.cfg.HeapSize = size
	return b
}

// WithInputDataSize sets the size of the buffer calls into the guest use.
func (b *Builder) WithInputDataSize(size uint64) *Builder {
	b.cfg.InputDataSize = size
	return b
}

// WithOutputDataSize sets the size of the buffer the guest uses to send data out.
func (b *Builder) WithOutputDataSize(size uint64) *Builder {
	b.cfg.OutputDataSize = size
	return b
}

// WithHostPrint sets the function that receives the guest printed text.
func (b *Builder) WithHostPrint(f HostPrintFunc) *Builder {
	b.hostPrint = f
	return b
}

// WithCallTimeout bounds every guest call, a call that times out poisons the sandbox.
func (b *Builder) WithCallTimeout(d time.Duration) *Builder {
	b.cfg.CallTimeout = d
	return b
}

// WithGuestImage sets the guest image, by default the embedded JavaScript guest.
func (b *Builder) WithGuestImage(img []byte) *Builder {
	b.guestImage = img
	return b
}

// WithDriver sets the isolation runtime driver, by default the emulated runtime.
func (b *Builder) WithDriver(d hypervisor.Driver) *Builder {
	b.driver = d
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l log.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsRecorder sets the metrics recorder.
func (b *Builder) WithMetricsRecorder(r metrics.Recorder) *Builder {
	b.metrics = r
	return b
}

func (b *Builder) defaults() error {
	if b.logger == nil {
		b.logger = log.Noop
	}
	b.logger = b.logger.WithValues(log.Kv{"svc": "sandbox.Sandbox"})

	if b.metrics == nil {
		b.metrics = metrics.Noop
	}

	if b.guestImage == nil {
		b.guestImage = image.Default()
	}

	if b.driver == nil {
		d, err := emulated.NewDriver(emulated.DriverConfig{Logger: b.logger})
		if err != nil {
			return fmt.Errorf("could not create emulated driver: %w", err)
		}
		b.driver = d
	}

	return nil
}

// Build checks the host can run isolated contexts and returns a ProtoSandbox.
// The builder can't be used after this call.
//
// Size values are not validated here, bad sizes fail when the runtime loads.
func (b *Builder) Build(ctx context.Context) (*ProtoSandbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed {
		return nil, fmt.Errorf("builder already used: %w", model.ErrConsumed)
	}
	b.consumed = true

	if err := b.defaults(); err != nil {
		return nil, err
	}

	checks := b.driver.Check(ctx)
	if model.HasErrors(checks) {
		var msgs []string
		for _, c := range checks {
			if c.Status == model.CheckStatusError {
				msgs = append(msgs, fmt.Sprintf("%s: %s", c.ID, c.Message))
			}
		}
		return nil, fmt.Errorf("%s: %w", strings.Join(msgs, "; "), model.ErrIsolationUnavailable)
	}

	uvm, err := b.driver.Create(ctx, b.cfg, b.guestImage)
	if err != nil {
		return nil, fmt.Errorf("could not create isolated context: %w", err)
	}

	logger := b.logger.WithValues(log.Kv{"vm-id": uvm.ID()})

	if b.hostPrint != nil {
		err := uvm.RegisterHostFunction(abi.FuncHostPrint, hostPrintFunction(b.hostPrint))
		if err != nil {
			_ = uvm.Close()
			return nil, fmt.Errorf("could not register host print: %w", err)
		}
	}

	logger.Debugf("Proto sandbox built")

	return &ProtoSandbox{
		vm:         uvm,
		guestImage: b.guestImage,
		inst: &instance{
			cfg:     b.cfg,
			logger:  logger,
			metrics: b.metrics,
		},
	}, nil
}

func hostPrintFunction(f HostPrintFunc) hypervisor.HostFunction {
	return hypervisor.HostFunction{
		Params: []abi.Type{abi.TypeString},
		Return: abi.TypeInt,
		Func: func(_ context.Context, args []abi.Value) (abi.Value, error) {
			n, err := f(args[0].String)
			if err != nil {
				return abi.Value{}, err
			}
			return abi.Int(int64(n)), nil
		},
	}
}
