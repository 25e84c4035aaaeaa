//go:build unix && !linux

package shm

import (
	"time"
)

// pollInterval bounds how long a waiter sleeps between checks of the word
// on kernels without a futex.
const pollInterval = time.Millisecond

// FutexWait sleeps while *addr == val, for at most timeout.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	if AtomicLoadUint32(addr) != val {
		return nil
	}
	if timeout > pollInterval {
		timeout = pollInterval
	}
	time.Sleep(timeout)
	return nil
}

// FutexWake is a no-op; pollers observe the released word on their own.
func FutexWake(_ *uint32, _ int) error {
	return nil
}
