package plugin

import "errors"

// Plugin system errors.
var (
	// ErrUnknownCapability is returned when a capability name is not recognized.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrIncompatibleAPI marks a plugin skipped for targeting another host contract.
	ErrIncompatibleAPI = errors.New("incompatible plugin api version")

	// ErrSetupFailed is returned when a plugin's setup returns an error.
	ErrSetupFailed = errors.New("plugin setup failed")

	// ErrSetupPanic is returned when a plugin's setup panics.
	ErrSetupPanic = errors.New("plugin setup panicked")

	// ErrModuleLoad is returned when an external module cannot be fetched or evaluated.
	ErrModuleLoad = errors.New("external module load failed")

	// ErrNoModuleLoader is returned when external URLs are configured without a loader.
	ErrNoModuleLoader = errors.New("no module loader configured")

	// ErrRenderPanic is returned when a renderable panics.
	ErrRenderPanic = errors.New("render panicked")
)
