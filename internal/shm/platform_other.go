//go:build !unix

package shm

import (
	"context"
	"time"
)

// MapRegion is not supported on this platform.
func MapRegion(_ context.Context, _ MapOptions) (*MappedRegion, error) {
	return nil, &StepError{Step: StepCreate, Err: ErrUnsupported}
}

// UnmapRegion is not supported on this platform.
func UnmapRegion(_ context.Context, _ *MappedRegion) error {
	return nil
}

// RemoveRegion is not supported on this platform.
func RemoveRegion(_ string) error {
	return ErrUnsupported
}

// Detached is not supported on this platform.
func Detached(_ int, _ string) (bool, error) {
	return false, ErrUnsupported
}

// FutexWait is not supported on this platform.
func FutexWait(_ *uint32, _ uint32, _ time.Duration) error {
	return ErrUnsupported
}

// FutexWake is not supported on this platform.
func FutexWake(_ *uint32, _ int) error {
	return nil
}
