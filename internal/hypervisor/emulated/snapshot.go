package emulated

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/model"
)

// snapshotKey is the keyed hash domain of snapshot digests.
var snapshotKey = blake3.Sum256([]byte("scriptbox.dev/v1 guest snapshot"))

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("emulated: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("emulated: zstd decoder initialization failed: " + err.Error())
	}
}

type snapshotState struct {
	memory     []byte // zstd compressed.
	memorySize int
	regs       registers
}

// digest returns the keyed hash of the guest state.
func digest(mem []byte, regs registers) (string, error) {
	h, err := blake3.NewKeyed(snapshotKey[:])
	if err != nil {
		return "", err
	}

	var rb [16]byte
	binary.LittleEndian.PutUint64(rb[:8], regs.StackPointer)
	binary.LittleEndian.PutUint64(rb[8:], regs.Calls)
	_, _ = h.Write(rb[:])
	_, _ = h.Write(mem)

	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Snapshot captures the guest memory and registers.
func (v *VM) Snapshot(ctx context.Context) (*hypervisor.Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, fmt.Errorf("vm closed: %w", model.ErrNotValid)
	}
	if v.Poisoned() {
		return nil, model.ErrPoisoned
	}

	if err := v.program.Checkpointable(); err != nil {
		return nil, fmt.Errorf("guest state can't be captured: %w", err)
	}

	d, err := digest(v.mem, v.regs)
	if err != nil {
		return nil, fmt.Errorf("could not digest guest state: %w", err)
	}

	compressed := zstdEncoder.EncodeAll(v.mem, nil)
	v.snapSeq++
	s := hypervisor.NewSnapshot(v.id, v.snapSeq, d, int64(len(compressed)), &snapshotState{
		memory:     compressed,
		memorySize: len(v.mem),
		regs:       v.regs,
	})

	v.logger.Debugf("Snapshot %d captured (%d bytes, %d compressed)", v.snapSeq, len(v.mem), len(compressed))

	return s, nil
}

// Restore restores a snapshot captured on this VM. The running guest program
// is shut down and a new instance is loaded on the restored memory.
func (v *VM) Restore(ctx context.Context, s *hypervisor.Snapshot) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vm closed: %w", model.ErrSnapshotRestore)
	}
	if v.Poisoned() {
		return model.ErrPoisoned
	}
	if s == nil {
		return fmt.Errorf("missing snapshot: %w", model.ErrSnapshotRestore)
	}
	if s.VMID() != v.id {
		return fmt.Errorf("snapshot from VM %s can't be restored on VM %s: %w", s.VMID(), v.id, model.ErrSnapshotRestore)
	}

	state, ok := s.State().(*snapshotState)
	if !ok || state.memorySize != len(v.mem) {
		return fmt.Errorf("snapshot state doesn't match the VM: %w", model.ErrSnapshotRestore)
	}

	mem, err := zstdDecoder.DecodeAll(state.memory, make([]byte, 0, state.memorySize))
	if err != nil {
		return fmt.Errorf("could not decompress snapshot: %w: %w", model.ErrSnapshotRestore, err)
	}
	if len(mem) != len(v.mem) {
		return fmt.Errorf("snapshot memory of %d bytes, VM memory of %d bytes: %w", len(mem), len(v.mem), model.ErrSnapshotRestore)
	}

	v.program.Shutdown()
	copy(v.mem, mem)
	v.regs = state.regs
	v.load()

	v.logger.Debugf("Snapshot %d restored", s.Seq())

	return nil
}
