package lib

import (
	"context"
	"time"

	"github.com/slok/scriptbox/internal/hypervisor/emulated"
	"github.com/slok/scriptbox/internal/model"
)

// SnapshotInfo describes the clean snapshot of a sandbox.
type SnapshotInfo struct {
	// VMID is the isolated context the snapshot belongs to.
	VMID string
	// Digest identifies the captured state, identical boots have the same digest.
	Digest    string
	SizeBytes int64
	CreatedAt time.Time
	// Image is the digest of the guest image the sandbox booted.
	Image     string
}

func fromInternalSnapshot(s model.SnapshotInfo) SnapshotInfo {
	return SnapshotInfo{
		VMID:      s.VMID,
		Digest:    s.Digest,
		SizeBytes: s.SizeBytes,
		CreatedAt: s.CreatedAt,
		Image:     s.Image,
	}
}

// CheckStatus represents the status of a preflight check.
type CheckStatus string

const (
	// CheckStatusOK indicates the check passed.
	CheckStatusOK CheckStatus = "ok"
	// CheckStatusWarning indicates the check passed with a warning.
	CheckStatusWarning CheckStatus = "warning"
	// CheckStatusError indicates the check failed.
	CheckStatusError CheckStatus = "error"
)

// CheckResult represents the result of a single preflight check.
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

// Check runs the preflight checks of the host isolation capabilities.
func Check(ctx context.Context) ([]CheckResult, error) {
	d, err := emulated.NewDriver(emulated.DriverConfig{})
	if err != nil {
		return nil, mapError(err)
	}

	results := d.Check(ctx)
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{ID: r.ID, Message: r.Message, Status: CheckStatus(r.Status)})
	}

	return out, nil
}
