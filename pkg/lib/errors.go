package lib

import (
	"errors"

	"github.com/slok/scriptbox/internal/model"
)

var (
	// ErrNotValid is returned when an input is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrConfiguration is returned when the sandbox configuration is not valid.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrIsolationUnavailable is returned by Build when the host can't run isolated contexts.
	ErrIsolationUnavailable = errors.New("isolation unavailable")
	// ErrBoot is returned when the guest image can't be booted.
	ErrBoot = errors.New("boot failed")
	// ErrAlreadyInitialized is returned when the guest already has a live interpreter.
	ErrAlreadyInitialized = errors.New("interpreter already initialized")
	// ErrInitializationFailure is returned when the guest interpreter could not be bootstrapped.
	ErrInitializationFailure = errors.New("interpreter initialization failed")
	// ErrCallDispatch is returned when a guest call could not be performed.
	ErrCallDispatch = errors.New("guest call failed")
	// ErrPoisoned is returned by every operation on a faulted sandbox.
	ErrPoisoned = errors.New("sandbox poisoned")
	// ErrSnapshotRestore is returned when the clean snapshot can't be restored.
	ErrSnapshotRestore = errors.New("snapshot restore failed")
	// ErrConsumed is returned when a sandbox object is used after its transition.
	ErrConsumed = errors.New("sandbox state already consumed")
)

var errorMapping = []struct {
	internal error
	public   error
}{
	// Most specific first.
	{model.ErrPoisoned, ErrPoisoned},
	{model.ErrConsumed, ErrConsumed},
	{model.ErrAlreadyInitialized, ErrAlreadyInitialized},
	{model.ErrInitializationFailure, ErrInitializationFailure},
	{model.ErrIsolationUnavailable, ErrIsolationUnavailable},
	{model.ErrSnapshotRestore, ErrSnapshotRestore},
	{model.ErrBoot, ErrBoot},
	{model.ErrCallDispatch, ErrCallDispatch},
	{model.ErrConfiguration, ErrConfiguration},
	{model.ErrNotValid, ErrNotValid},
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var sentinels []error
	for _, m := range errorMapping {
		if errors.Is(err, m.internal) {
			sentinels = append(sentinels, m.public)
		}
	}
	if len(sentinels) == 0 {
		return err
	}

	return &mappedError{original: err, sentinels: sentinels}
}

type mappedError struct {
	original  error
	sentinels []error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	for _, s := range e.sentinels {
		if target == s {
			return true
		}
	}
	return false
}

func (e *mappedError) Unwrap() error { return e.original }
