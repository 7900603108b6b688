// Package emulated is an in-process isolation runtime. Every VM has its own
// guest memory arena and all the calls cross it as frames, guest programs are
// loaded from the guest image entrypoint.
package emulated

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/guest"
	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/model"
)

// MaxMemorySize is the maximum guest memory of a VM.
const MaxMemorySize uint64 = 1 << 30

// DriverConfig is the configuration for the emulated driver.
type DriverConfig struct {
	// Programs are the guest programs by image entrypoint.
	Programs map[string]hypervisor.ProgramFactory
	// Stdout is where the default host print function writes.
	Stdout io.Writer
	// MaxMemorySize is the maximum guest memory of a VM.
	MaxMemorySize uint64
	// KVMDevicePath is checked to report hardware isolation support.
	KVMDevicePath string
	Logger        log.Logger
}

func (c *DriverConfig) defaults() error {
	if c.Programs == nil {
		c.Programs = map[string]hypervisor.ProgramFactory{
			guest.Entrypoint: guest.New,
		}
	}

	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}

	if c.MaxMemorySize == 0 {
		c.MaxMemorySize = MaxMemorySize
	}

	if c.KVMDevicePath == "" {
		c.KVMDevicePath = hypervisor.KVMDevicePath
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hypervisor.Emulated"})

	return nil
}

// Driver is the emulated isolation runtime driver.
type Driver struct {
	programs  map[string]hypervisor.ProgramFactory
	stdout    io.Writer
	maxMemory uint64
	kvmPath   string
	logger    log.Logger
}

// NewDriver returns a new emulated driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{
		programs:  cfg.Programs,
		stdout:    cfg.Stdout,
		maxMemory: cfg.MaxMemorySize,
		kvmPath:   cfg.KVMDevicePath,
		logger:    cfg.Logger,
	}, nil
}

// Check runs the preflight checks of the driver.
func (d *Driver) Check(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{
		{
			ID:      "emulated_runtime",
			Status:  model.CheckStatusOK,
			Message: fmt.Sprintf("in-process isolation runtime available (max guest memory %d bytes)", d.maxMemory),
		},
	}

	if len(d.programs) == 0 {
		results = append(results, model.CheckResult{ID: "guest_programs", Status: model.CheckStatusError, Message: "no guest programs registered"})
	} else {
		entrypoints := make([]string, 0, len(d.programs))
		for ep := range d.programs {
			entrypoints = append(entrypoints, ep)
		}
		sort.Strings(entrypoints)
		results = append(results, model.CheckResult{ID: "guest_programs", Status: model.CheckStatusOK, Message: "entrypoints: " + strings.Join(entrypoints, ", ")})
	}

	kvm := hypervisor.CheckKVMPath(d.kvmPath, model.CheckStatusWarning)
	if kvm.Status != model.CheckStatusOK {
		kvm.Message += " (hardware isolation not available, using emulated isolation)"
	}
	results = append(results, kvm)

	return results
}

// Create creates a new uninitialized VM. Nothing is allocated until the VM evolves.
func (d *Driver) Create(ctx context.Context, cfg model.SandboxConfig, guestImage []byte) (hypervisor.UninitializedVM, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	u := &UninitializedVM{
		id:        id,
		cfg:       cfg,
		image:     guestImage,
		driver:    d,
		hostFuncs: map[string]hypervisor.HostFunction{},
		logger:    d.logger.WithValues(log.Kv{"vm-id": id}),
	}

	// Default print goes to the driver stdout.
	u.hostFuncs[abi.FuncHostPrint] = hypervisor.HostFunction{
		Params: []abi.Type{abi.TypeString},
		Return: abi.TypeInt,
		Func: func(_ context.Context, args []abi.Value) (abi.Value, error) {
			n, err := io.WriteString(d.stdout, args[0].String)
			return abi.Int(int64(n)), err
		},
	}

	u.logger.Debugf("VM created")

	return u, nil
}
