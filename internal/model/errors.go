package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrConfiguration is returned when a sandbox is built with an invalid configuration.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrIsolationUnavailable is returned when the host has no usable isolation capability.
	ErrIsolationUnavailable = errors.New("isolation unavailable")
	// ErrBoot is returned when the isolated context can't be created or booted.
	ErrBoot = errors.New("boot failed")
	// ErrAlreadyInitialized is returned when the guest interpreter has already been initialized.
	ErrAlreadyInitialized = errors.New("interpreter already initialized")
	// ErrInitializationFailure is returned when the guest reports the interpreter could not be initialized.
	ErrInitializationFailure = errors.New("interpreter initialization failed")
	// ErrCallDispatch is returned when a guest function call could not be performed or returned unexpected data.
	ErrCallDispatch = errors.New("guest call failed")
	// ErrPoisoned is returned when the isolated context is unusable until it's restored.
	ErrPoisoned = errors.New("sandbox poisoned")
	// ErrSnapshotRestore is returned when a snapshot can't be restored on the isolated context.
	ErrSnapshotRestore = errors.New("snapshot restore failed")
	// ErrConsumed is returned when a lifecycle state object is used after its transition happened.
	ErrConsumed = errors.New("sandbox state already consumed")
)
