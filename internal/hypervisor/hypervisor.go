// Package hypervisor has the contracts of the isolation runtime that hosts
// guest images.
//
// A Driver creates uninitialized isolated contexts (VMs), host functions are
// registered on them and then they are evolved into running VMs that accept
// synchronous guest calls and can be snapshotted and restored.
package hypervisor

import (
	"context"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/model"
)

// Driver knows how to create isolated contexts.
type Driver interface {
	// Check runs preflight checks of the host isolation capabilities.
	Check(ctx context.Context) []model.CheckResult
	// Create creates a new isolated context for a guest image, it doesn't run anything yet.
	Create(ctx context.Context, cfg model.SandboxConfig, guestImage []byte) (UninitializedVM, error)
}

// UninitializedVM is an isolated context that has not started running the guest image.
type UninitializedVM interface {
	ID() string
	// RegisterHostFunction makes a host function callable from the guest.
	// Registering a name twice replaces the previous function.
	RegisterHostFunction(name string, fn HostFunction) error
	// Evolve boots the guest image until it's ready to accept calls.
	// The uninitialized VM is unusable after this call regardless of the result.
	Evolve(ctx context.Context) (VM, error)
	Close() error
}

// VM is a booted isolated context.
type VM interface {
	ID() string
	// Call calls a guest function synchronously. Context cancellation interrupts
	// the guest and poisons the VM.
	Call(ctx context.Context, name string, ret abi.Type, args ...abi.Value) (abi.Value, error)
	// Snapshot captures the full guest state.
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Restore sets the guest state to a snapshot taken on this same VM.
	Restore(ctx context.Context, s *Snapshot) error
	// Poisoned returns true once the VM faulted, it never goes back to false.
	Poisoned() bool
	Close() error
}

// HostFunction is a function the guest can call on the host.
type HostFunction struct {
	Params []abi.Type
	Return abi.Type
	Func   func(ctx context.Context, args []abi.Value) (abi.Value, error)
}

// CheckTypes checks a list of values matches the expected types.
func CheckTypes(expected []abi.Type, args []abi.Value) *abi.GuestError {
	if len(expected) != len(args) {
		return abi.NewGuestError(abi.ErrorCodeParameterTypeMismatch, "expected %d parameters, got %d", len(expected), len(args))
	}
	for i, t := range expected {
		if args[i].Type != t {
			return abi.NewGuestError(abi.ErrorCodeParameterTypeMismatch, "parameter %d: expected %s, got %s", i, t, args[i].Type)
		}
	}
	return nil
}
