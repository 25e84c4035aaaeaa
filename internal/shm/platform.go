// Package shm contains platform-specific helpers for named shared memory segments.
package shm

import (
	"errors"
	"fmt"
)

// Step identifies the stage of segment resolution that failed.
type Step string

const (
	StepCreate Step = "create"
	StepResize Step = "resize"
	StepAttach Step = "attach"
	StepMap    Step = "map"
)

// ErrUnsupported is returned on platforms without a shared memory namespace.
var ErrUnsupported = errors.New("shared memory segments are not supported on this platform")

// ErrUndersized is returned when an existing object is smaller than requested.
var ErrUndersized = errors.New("shared memory object is smaller than requested")

// MappedRegion represents a named shared-memory object mapped into this process.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Path string
	// Created reports whether MapRegion created the object exclusively.
	Created bool
}

// MapOptions defines options for resolving a named shared-memory object.
type MapOptions struct {
	Path string
	Size int
	Perm uint32
}

// StepError reports the failing step of MapRegion together with any error
// met while releasing what had already been acquired.
type StepError struct {
	Step    Step
	Created bool
	Err     error
	Cleanup error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
