// Package apperr defines the error taxonomy shared between the core and the
// dispatch layer.
//
// Per-request failures are reported as one of these sentinels (usually
// wrapped with context via fmt.Errorf and %w) so the API layer can map them
// to status codes with errors.Is. Timeouts are deliberately absent: a timed
// out action is a normal terminal state carried inside the action result,
// not an error.
package apperr

import "errors"

var (
	// ErrUnknownApp is returned when a name (or the default) resolves to no
	// registered application.
	ErrUnknownApp = errors.New("unknown application")

	// ErrBusy is returned when the per-app lock could not be acquired within
	// the configured wait bound.
	ErrBusy = errors.New("application busy")

	// ErrScriptNotFound is returned when the control script is missing or
	// not executable. Checked before spawning, so no child exists.
	ErrScriptNotFound = errors.New("control script not found")

	// ErrSpawnFailed is returned when the OS failed to create the child
	// process. Not retried.
	ErrSpawnFailed = errors.New("failed to spawn process")

	// ErrLogNotFound is returned when a log path resolves to no file.
	ErrLogNotFound = errors.New("log file not found")
)
