//go:build !linux

package shm

import "os"

// DefaultDir is where named segments are kept on platforms without /dev/shm.
func DefaultDir() string {
	return os.TempDir()
}
