package model

import (
	"fmt"
	"time"
)

const (
	// DefaultStackSize is the default guest stack region size in bytes.
	DefaultStackSize uint64 = 128 * 1024
	// DefaultHeapSize is the default guest heap region size in bytes.
	DefaultHeapSize uint64 = 512 * 1024
	// DefaultInputDataSize is the default host to guest buffer size in bytes.
	DefaultInputDataSize uint64 = 16 * 1024
	// DefaultOutputDataSize is the default guest to host buffer size in bytes.
	DefaultOutputDataSize uint64 = 16 * 1024
)

// SandboxConfig is the configuration used to boot an isolated context.
type SandboxConfig struct {
	// StackSize is the guest stack region size in bytes.
	StackSize uint64
	// HeapSize is the guest heap region size in bytes.
	HeapSize uint64
	// InputDataSize is the size of the buffer used to pass calls into the guest.
	InputDataSize uint64
	// OutputDataSize is the size of the buffer used to pass data out of the guest.
	OutputDataSize uint64
	// DebugPort enables the guest debugging endpoint on the port when set.
	DebugPort *uint16
	// CallTimeout bounds every guest call, zero disables the watchdog.
	CallTimeout time.Duration
}

// DefaultSandboxConfig returns a configuration with the default values.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		StackSize:      DefaultStackSize,
		HeapSize:       DefaultHeapSize,
		InputDataSize:  DefaultInputDataSize,
		OutputDataSize: DefaultOutputDataSize,
	}
}

// Validate checks the configuration is usable.
func (c SandboxConfig) Validate() error {
	if c.StackSize == 0 {
		return fmt.Errorf("stack size must be greater than zero: %w", ErrConfiguration)
	}
	if c.HeapSize == 0 {
		return fmt.Errorf("heap size must be greater than zero: %w", ErrConfiguration)
	}
	if c.InputDataSize == 0 || c.OutputDataSize == 0 {
		return fmt.Errorf("input and output data sizes must be greater than zero: %w", ErrConfiguration)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout can't be negative: %w", ErrConfiguration)
	}
	if c.DebugPort != nil && *c.DebugPort == 0 {
		return fmt.Errorf("debug port can't be zero: %w", ErrConfiguration)
	}

	return nil
}

// SnapshotInfo describes a captured guest state.
type SnapshotInfo struct {
	VMID      string
	Digest    string
	Seq       uint64
	SizeBytes int64
	CreatedAt time.Time
	// Image is the digest of the guest image the snapshot was booted from.
	Image     string
}
