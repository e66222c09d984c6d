package monitor

import "errors"

var (
	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("monitor: already running")

	// ErrStopped is returned by requests made after Run has returned.
	ErrStopped = errors.New("monitor: stopped")
)
