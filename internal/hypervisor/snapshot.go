package hypervisor

import (
	"time"

	"github.com/slok/scriptbox/internal/model"
)

// Snapshot is an opaque checkpoint of a VM state. It can only be restored on
// the VM that captured it.
type Snapshot struct {
	vmID      string
	seq       uint64
	digest    string
	size      int64
	createdAt time.Time
	state     any
}

// NewSnapshot returns a new snapshot. State is the driver specific data
// required to restore it.
func NewSnapshot(vmID string, seq uint64, digest string, size int64, state any) *Snapshot {
	return &Snapshot{
		vmID:      vmID,
		seq:       seq,
		digest:    digest,
		size:      size,
		createdAt: time.Now().UTC(),
		state:     state,
	}
}

func (s *Snapshot) VMID() string         { return s.vmID }
func (s *Snapshot) Seq() uint64          { return s.seq }
func (s *Snapshot) Digest() string       { return s.digest }
func (s *Snapshot) Size() int64          { return s.size }
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }
func (s *Snapshot) State() any           { return s.state }

// Info returns the public information of the snapshot.
func (s *Snapshot) Info() model.SnapshotInfo {
	return model.SnapshotInfo{
		VMID:      s.vmID,
		Digest:    s.digest,
		Seq:       s.seq,
		SizeBytes: s.size,
		CreatedAt: s.createdAt,
	}
}
