// Package apperr holds the error taxonomy shared by the monitor packages.
// Callers match with errors.Is; producers wrap with fmt.Errorf("...: %w").
package apperr

import "errors"

var (
	// ErrStorageUnavailable means the store could not be created or opened.
	// It is fatal to startup.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageWrite means a single append failed. The record is dropped.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrSensorUnavailable means host metrics could not be read within the
	// collection timeout. The cycle is skipped.
	ErrSensorUnavailable = errors.New("sensor unavailable")

	// ErrInvalidConfiguration is returned before any work starts when the
	// interval or phase list is unusable.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
