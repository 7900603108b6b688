package hypervisor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/slok/scriptbox/internal/model"
)

// KVMDevicePath is the KVM device used for hardware isolation.
const KVMDevicePath = "/dev/kvm"

// CheckKVM checks the default KVM device is present and accessible.
func CheckKVM(status model.CheckStatus) model.CheckResult {
	return CheckKVMPath(KVMDevicePath, status)
}

// CheckKVMPath checks a KVM device, failures are reported with failStatus.
func CheckKVMPath(path string, failStatus model.CheckStatus) model.CheckResult {
	const id = "kvm_available"

	info, err := os.Stat(path)
	if err != nil {
		return model.CheckResult{ID: id, Status: failStatus, Message: fmt.Sprintf("%s not found", path)}
	}

	if info.Mode()&os.ModeCharDevice == 0 {
		return model.CheckResult{ID: id, Status: failStatus, Message: fmt.Sprintf("%s is not a character device", path)}
	}

	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return model.CheckResult{ID: id, Status: failStatus, Message: fmt.Sprintf("%s not accessible (check permissions or kvm group membership): %v", path, err)}
	}

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: fmt.Sprintf("%s is accessible", path)}
}
