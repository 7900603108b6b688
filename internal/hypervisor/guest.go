package hypervisor

import (
	"context"

	"github.com/slok/scriptbox/internal/abi"
)

// Region is a range of guest memory.
type Region struct {
	Offset uint64
	Size   uint64
}

// End returns the first offset after the region.
func (r Region) End() uint64 { return r.Offset + r.Size }

// Layout is the guest memory layout, regions are contiguous in this order.
type Layout struct {
	// PEB is the environment block, the header is owned by the runtime and
	// the rest is guest globals scratch space.
	PEB    Region
	Input  Region
	Output Region
	Stack  Region
	Heap   Region
}

// Size returns the total guest memory size.
func (l Layout) Size() uint64 { return l.Heap.End() }

// Env is what the isolation runtime exposes to a guest program.
type Env interface {
	Layout() Layout
	// Memory returns the guest memory of a region, writes are visible to the VM.
	Memory(r Region) []byte
	// Globals returns the guest globals scratch space inside the PEB.
	Globals() []byte
	// CallHost calls a registered host function synchronously.
	CallHost(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error)
}

// GuestFunction is a function exported by a guest program.
type GuestFunction struct {
	Name   string
	Params []abi.Type
	Return abi.Type
	Func   func(ctx context.Context, args []abi.Value) (abi.Value, error)
}

// Program is a guest program loaded by the isolation runtime from a guest
// image entrypoint.
type Program interface {
	// Main runs once when the VM evolves, it must leave the guest ready to accept calls.
	Main(ctx context.Context) error
	// Functions returns the exported guest functions.
	Functions() []GuestFunction
	// Interrupt stops the running guest function as soon as possible.
	Interrupt(reason any)
	// Checkpointable returns an error when the program has state that
	// can't be captured in guest memory.
	Checkpointable() error
	// Shutdown releases the program, the instance is not used after this.
	Shutdown()
}

// ProgramFactory instantiates a guest program on a guest environment.
type ProgramFactory func(env Env) Program
