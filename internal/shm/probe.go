package shm

import (
	"slices"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
)

// FreeSpace returns the number of bytes still available in dir.
func FreeSpace(dir string) (uint64, error) {
	stat, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}

// CanCreate reports whether size bytes fit in dir. When the usage of dir
// cannot be determined the answer is true and the create call itself decides.
func CanCreate(dir string, size uint64) bool {
	free, err := FreeSpace(dir)
	if err != nil {
		return true
	}
	return free >= size
}

// ProcessAlive reports whether pid names a running process. Zombies count
// as dead: they can no longer release anything they held.
func ProcessAlive(pid int32) bool {
	exists, err := process.PidExists(pid)
	if err != nil || !exists {
		return err != nil
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	return !slices.Contains(status, process.Zombie)
}
