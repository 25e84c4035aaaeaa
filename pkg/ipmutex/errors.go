package ipmutex

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/srediag/ipmutex/internal/shm"
)

// Op names the operation that failed.
type Op string

const (
	// OpCreate covers creating or opening the shared memory object.
	OpCreate Op = "create"
	// OpResize covers sizing a newly created object to hold the lock word.
	OpResize Op = "resize"
	// OpAttach covers validating an object created by another process.
	OpAttach Op = "attach"
	// OpMap covers mapping the object into this process.
	OpMap Op = "map"
	// OpInit covers the owner's initialization of the lock word.
	OpInit Op = "init"
	// OpLock covers acquiring the lock.
	OpLock Op = "lock"
	// OpInspect covers reading an object with Inspect.
	OpInspect Op = "inspect"
	// OpRemove covers removing an object with Remove.
	OpRemove Op = "remove"
)

var (
	// ErrClosed is returned when locking a Mutex that was closed.
	ErrClosed = errors.New("ipmutex: mutex is closed")

	// ErrOwnerDead is returned by Lock when the previous holder exited
	// without unlocking. The caller holds the lock when it is returned.
	ErrOwnerDead = fmt.Errorf("ipmutex: previous holder died: %w", syscall.EOWNERDEAD)

	// ErrSegmentNotReady is returned when attaching to an object that its
	// creator has not sized yet.
	ErrSegmentNotReady = fmt.Errorf("ipmutex: shared memory object not initialized: %w", syscall.EAGAIN)

	// ErrUnsupported is returned on platforms without shared memory objects.
	ErrUnsupported = shm.ErrUnsupported

	// ErrInvalidConfig is returned by VerifyConfig.
	ErrInvalidConfig = errors.New("ipmutex: invalid config")
)

// Error records a failed Mutex operation together with the originating
// system error.
type Error struct {
	Op   Op
	Key  string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("ipmutex: %s %s (%s): %v", e.Op, e.Key, e.Path, e.Err)
	}
	return fmt.Sprintf("ipmutex: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno returns the system error code carried by e, or 0 if there is none.
func (e *Error) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func newError(op Op, key, path string, err error) *Error {
	return &Error{Op: op, Key: key, Path: path, Err: err}
}

// stepOp maps a failed resolution step onto the operation reported to callers.
func stepOp(step shm.Step) Op {
	switch step {
	case shm.StepResize:
		return OpResize
	case shm.StepAttach:
		return OpAttach
	case shm.StepMap:
		return OpMap
	default:
		return OpCreate
	}
}
