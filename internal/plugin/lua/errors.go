package lua

import "errors"

// Errors for Lua plugin operations.
var (
	// ErrExecutorClosed is returned when attempting to use a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrQueueFull is returned when an asynchronous call cannot be queued.
	ErrQueueFull = errors.New("lua executor queue full")

	// ErrCompile is returned when a chunk fails to parse.
	ErrCompile = errors.New("lua compile error")

	// ErrNotDescriptor is returned when a module does not evaluate to a descriptor table.
	ErrNotDescriptor = errors.New("module did not return a plugin descriptor table")

	// ErrMissingID is returned when a descriptor table has no id.
	ErrMissingID = errors.New("plugin descriptor has no id")

	// ErrInvalidExport wraps the logged reason a malformed export entry was skipped.
	ErrInvalidExport = errors.New("invalid export")

	// ErrRenderResult is returned when a render function returns a non-string value.
	ErrRenderResult = errors.New("render must return a string")

	// ErrUnsupportedScheme is returned for URLs the loader cannot fetch.
	ErrUnsupportedScheme = errors.New("unsupported module url scheme")

	// ErrFetch is returned when a module source cannot be retrieved.
	ErrFetch = errors.New("module fetch failed")

	// ErrModuleTooLarge is returned when a module source exceeds the size limit.
	ErrModuleTooLarge = errors.New("module source too large")
)
