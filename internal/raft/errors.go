package raft

import "fmt"

// IOError is the structured error surfaced through flush completion channels. It carries the
// underlying OS/storage error so callers can unwrap down to it with errors.Is/errors.As.
type IOError struct {
	// Op names the failing operation, e.g. "flush" or "open".
	Op string
	// Err is the underlying error reported by the storage medium.
	Err error
}

// Error returns the string representation of the IOError.
func (e *IOError) Error() string {
	return fmt.Sprintf("io error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// StorageError is the structured error surfaced through apply completion channels. It may wrap a
// plain IO error or a higher-level storage inconsistency detected while applying entries.
type StorageError struct {
	// Component names the storage engine that failed, e.g. "log" or "state_machine".
	Component string
	// LogID is the last log id the failing operation was attempting to reach.
	LogID LogID
	// Err is the underlying error.
	Err error
}

// Error returns the string representation of the StorageError.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s up to (%s): %v", e.Component, e.LogID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
