//go:build unix

package shm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

// An attacher may open the object between its creator's exclusive open and
// resize. It re-checks the size this often before giving up.
const (
	attachRetries       = 20
	attachRetryInterval = 500 * time.Microsecond
)

// MapRegion creates the object named by opts.Path exclusively, or attaches to
// it when it already exists, and maps opts.Size bytes of it read/write and
// shared. Only the creator resizes the object. Whatever was acquired before a
// failing step is released; an object created by this call is unlinked.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepCreate, Err: err}
	}
	created := true
	fd, err := unix.Open(opts.Path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, opts.Perm)
	if errors.Is(err, unix.EEXIST) {
		created = false
		fd, err = unix.Open(opts.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, &StepError{Step: StepCreate, Err: err}
	}

	fail := func(step Step, err error) (*MappedRegion, error) {
		se := &StepError{Step: step, Created: created, Err: err}
		var cleanup []error
		if cerr := unix.Close(fd); cerr != nil {
			cleanup = append(cleanup, cerr)
		}
		if created {
			if uerr := unix.Unlink(opts.Path); uerr != nil {
				cleanup = append(cleanup, uerr)
			}
		}
		se.Cleanup = errors.Join(cleanup...)
		return nil, se
	}

	if created {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			return fail(StepResize, err)
		}
	} else if err := waitSized(ctx, fd, opts.Size); err != nil {
		return fail(StepAttach, err)
	}

	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fail(StepMap, err)
	}
	return &MappedRegion{
		Addr:    addr,
		Fd:      fd,
		Path:    opts.Path,
		Created: created,
	}, nil
}

// waitSized waits, for a bounded time, until the object behind fd holds at
// least size bytes.
func waitSized(ctx context.Context, fd, size int) error {
	op := func() error {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return backoff.Permanent(err)
		}
		if st.Size < int64(size) {
			return ErrUndersized
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(attachRetryInterval), attachRetries), ctx)
	return backoff.Retry(op, b)
}

// UnmapRegion unmaps and closes the region. Both steps are attempted even if
// the first fails. The named object is left in place.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil {
		return nil
	}
	var errs []error
	if region.Addr != nil {
		if err := unix.Munmap(region.Addr); err != nil {
			errs = append(errs, err)
		}
		region.Addr = nil
	}
	if region.Fd >= 0 {
		if err := unix.Close(region.Fd); err != nil {
			errs = append(errs, err)
		}
		region.Fd = -1
	}
	return errors.Join(errs...)
}

// RemoveRegion removes the named object from the namespace. Processes that
// already mapped it keep a valid mapping.
func RemoveRegion(path string) error {
	return unix.Unlink(path)
}

// Detached reports whether path no longer names the object behind fd, either
// because it was removed or because a different object took its name.
func Detached(fd int, path string) (bool, error) {
	var mine, named unix.Stat_t
	if err := unix.Fstat(fd, &mine); err != nil {
		return false, err
	}
	if err := unix.Stat(path, &named); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return true, nil
		}
		return false, err
	}
	return mine.Dev != named.Dev || mine.Ino != named.Ino, nil
}
