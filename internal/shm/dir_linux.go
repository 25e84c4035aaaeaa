//go:build linux

package shm

// DefaultDir is where the POSIX shared memory namespace lives.
func DefaultDir() string {
	return "/dev/shm"
}
