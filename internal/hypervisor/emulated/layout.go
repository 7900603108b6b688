package emulated

import (
	"encoding/binary"
	"fmt"

	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/model"
)

const (
	pebSize         = 4096
	pebHeaderSize   = 256
	minIOBufferSize = 256
)

var pebMagic = [8]byte{'S', 'B', 'X', 'P', 'E', 'B', '0', '1'}

// newLayout returns the guest memory layout for a configuration.
func newLayout(cfg model.SandboxConfig, maxMemory uint64) (hypervisor.Layout, error) {
	if err := cfg.Validate(); err != nil {
		return hypervisor.Layout{}, err
	}

	if cfg.InputDataSize < minIOBufferSize || cfg.OutputDataSize < minIOBufferSize {
		return hypervisor.Layout{}, fmt.Errorf("input and output buffers must be at least %d bytes", minIOBufferSize)
	}

	// Avoid overflows with absurd sizes before adding them.
	for _, s := range []uint64{cfg.InputDataSize, cfg.OutputDataSize, cfg.StackSize, cfg.HeapSize} {
		if s > maxMemory {
			return hypervisor.Layout{}, fmt.Errorf("region of %d bytes exceeds max guest memory of %d bytes", s, maxMemory)
		}
	}

	l := hypervisor.Layout{PEB: hypervisor.Region{Offset: 0, Size: pebSize}}
	l.Input = hypervisor.Region{Offset: l.PEB.End(), Size: cfg.InputDataSize}
	l.Output = hypervisor.Region{Offset: l.Input.End(), Size: cfg.OutputDataSize}
	l.Stack = hypervisor.Region{Offset: l.Output.End(), Size: cfg.StackSize}
	l.Heap = hypervisor.Region{Offset: l.Stack.End(), Size: cfg.HeapSize}

	if l.Size() > maxMemory {
		return hypervisor.Layout{}, fmt.Errorf("guest memory of %d bytes exceeds max of %d bytes", l.Size(), maxMemory)
	}

	return l, nil
}

// writePEB writes the environment block header the guest reads its layout from.
func writePEB(mem []byte, l hypervisor.Layout) {
	copy(mem, pebMagic[:])
	binary.LittleEndian.PutUint32(mem[8:], image.ABIVersion)
	off := 16
	for _, r := range []hypervisor.Region{l.Input, l.Output, l.Stack, l.Heap} {
		binary.LittleEndian.PutUint64(mem[off:], r.Offset)
		binary.LittleEndian.PutUint64(mem[off+8:], r.Size)
		off += 16
	}
}
