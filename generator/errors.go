package generator

import (
	"errors"

	"github.com/drgolem/go-tonegen/signal"
)

var (
	// ErrAllocationFailed means the ring buffer could not be allocated.
	// The generator is left uninitialized.
	ErrAllocationFailed = errors.New("generator: allocation failed")
	// ErrInvalidParameter means a caller-supplied value violates a
	// precondition. Nothing was changed.
	ErrInvalidParameter = signal.ErrInvalidParameter
	// ErrInvalidState means the operation is not allowed in the current
	// lifecycle state. Nothing was changed.
	ErrInvalidState = errors.New("generator: invalid state")
	// ErrDevice wraps failures reported by the audio backend.
	ErrDevice = errors.New("generator: device error")
)
