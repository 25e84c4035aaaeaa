package ipmutex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/ipmutex/internal/shm"
)

// Locker is the capability set of a Mutex.
type Locker interface {
	Lock() error
	TryLock() bool
	Unlock()
}

var _ Locker = (*Mutex)(nil)

// noCopy makes go vet's copylocks check reject copies of a Mutex.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Mutex is a mutual-exclusion lock shared by every process that constructs
// one with the same key. A Mutex must not be copied; use it through the
// pointer returned by New.
type Mutex struct {
	_ noCopy

	key    string
	path   string
	owner  bool
	pid    uint32
	region *shm.MappedRegion
	word   lockWord
	probe  time.Duration
	tracer trace.Tracer
	inst   *instruments

	// regionMu orders Stale against the release of the region in Close.
	regionMu sync.RWMutex
	closed   atomic.Bool
}

// New constructs a Mutex for key with the default configuration. An empty
// key is replaced by the id of the calling process, so only an explicit key
// can be shared with other processes.
func New(key string) (*Mutex, error) {
	return NewWithConfig(key, DefaultConfig())
}

// NewWithConfig constructs a Mutex for key. The first caller for a key
// creates the shared memory object and becomes its owner; later callers
// attach to it. Failures are reported as *Error and leave nothing mapped.
func NewWithConfig(key string, config *Config) (*Mutex, error) {
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	resolved, err := resolveKey(key)
	if err != nil {
		return nil, newError(OpCreate, key, "", err)
	}
	path := filepath.Join(config.Dir, resolved)

	inst, err := newInstruments(config.meter(), resolved)
	if err != nil {
		return nil, fmt.Errorf("ipmutex: create instruments: %w", err)
	}

	if config.CheckFreeSpace {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !shm.CanCreate(config.Dir, Size) {
			return nil, newError(OpCreate, resolved, path, syscall.ENOSPC)
		}
	}

	region, err := shm.MapRegion(context.Background(), shm.MapOptions{
		Path: path,
		Size: Size,
		Perm: uint32(config.Perm),
	})
	if err != nil {
		var se *shm.StepError
		if !errors.As(err, &se) {
			return nil, newError(OpCreate, resolved, path, err)
		}
		if se.Cleanup != nil {
			internalLogger.warnf("%s: release after failed %s: %v", path, se.Step, se.Cleanup)
		}
		cause := se.Err
		if errors.Is(cause, shm.ErrUndersized) {
			cause = ErrSegmentNotReady
		}
		return nil, newError(stepOp(se.Step), resolved, path, cause)
	}

	m := &Mutex{
		key:    resolved,
		path:   path,
		owner:  region.Created,
		pid:    uint32(os.Getpid()),
		region: region,
		probe:  config.ProbeInterval,
		tracer: config.tracer(),
		inst:   inst,
	}
	if !shm.Aligned(region.Addr, stateOffset) {
		m.release()
		return nil, newError(OpInit, resolved, path, syscall.EINVAL)
	}
	m.word = mapLockWord(region.Addr)
	if m.owner {
		m.word.init(m.pid)
		internalLogger.infof("created %s", path)
	} else {
		internalLogger.debugf("attached %s", path)
	}
	segmentsOpen.WithLabelValues(roleLabel(m.owner)).Inc()
	return m, nil
}

// resolveKey returns the object name for key: a single path element with a
// leading slash.
func resolveKey(key string) (string, error) {
	name := strings.TrimPrefix(key, "/")
	if key == "" {
		name = strconv.Itoa(os.Getpid())
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return "", syscall.EINVAL
	}
	return "/" + name, nil
}

// Lock blocks until the lock is acquired. If the previous holder exited
// without unlocking, Lock takes the lock over and returns an error wrapping
// ErrOwnerDead; the caller holds the lock in that case and must Unlock it.
func (m *Mutex) Lock() error {
	if m.closed.Load() {
		return newError(OpLock, m.key, m.path, ErrClosed)
	}
	if shm.AtomicCompareAndSwapUint32(m.word.state, unlocked, locked) {
		m.acquired("lock")
		return nil
	}
	return m.lockSlow()
}

func (m *Mutex) lockSlow() error {
	start := time.Now()
	_, span := m.tracer.Start(context.Background(), "ipmutex.Lock",
		trace.WithAttributes(attribute.String("ipmutex.key", m.key)))
	defer span.End()

	lastProbe := start
	for shm.AtomicSwapUint32(m.word.state, contested) != unlocked {
		if err := shm.FutexWait(m.word.state, contested, m.probe); err != nil {
			internalLogger.errorf("%s: wait for lock: %v", m.path, err)
			span.RecordError(err)
			return newError(OpLock, m.key, m.path, err)
		}
		if time.Since(lastProbe) < m.probe {
			continue
		}
		lastProbe = time.Now()
		if h, ok := m.takeOver(); ok {
			internalLogger.warnf("%s: holder %d exited while holding the lock, taken over by %d", m.path, h, m.pid)
			ownerDead.WithLabelValues(m.key).Inc()
			m.recordWait(time.Since(start))
			err := newError(OpLock, m.key, m.path, ErrOwnerDead)
			span.RecordError(err)
			return err
		}
	}
	m.recordWait(time.Since(start))
	m.acquired("lock")
	return nil
}

// takeOver claims the lock if its recorded holder is a process that no
// longer runs. The claim is a CAS on the holder field, so among several
// waiters only one succeeds.
func (m *Mutex) takeOver() (uint32, bool) {
	h := shm.AtomicLoadUint32(m.word.holder)
	internalLogger.tracef("%s: probing holder %d", m.path, h)
	if h == 0 || h == m.pid || shm.ProcessAlive(int32(h)) {
		return h, false
	}
	if !shm.AtomicCompareAndSwapUint32(m.word.holder, h, m.pid) {
		return h, false
	}
	shm.AtomicStoreUint32(m.word.state, contested)
	return h, true
}

func (m *Mutex) acquired(mode string) {
	shm.AtomicStoreUint32(m.word.holder, m.pid)
	m.recordAcquired(mode)
}

// TryLock acquires the lock if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	if m.closed.Load() {
		return false
	}
	if !shm.AtomicCompareAndSwapUint32(m.word.state, unlocked, locked) {
		return false
	}
	m.acquired("trylock")
	return true
}

// Unlock releases the lock. Unlocking a lock that is not held is not
// detected.
func (m *Mutex) Unlock() {
	if m.closed.Load() {
		return
	}
	shm.AtomicStoreUint32(m.word.holder, 0)
	if shm.AtomicSwapUint32(m.word.state, unlocked) == contested {
		if err := shm.FutexWake(m.word.state, 1); err != nil {
			internalLogger.warnf("%s: wake waiter: %v", m.path, err)
		}
	}
}

// IsOwner reports whether this instance created the shared memory object.
func (m *Mutex) IsOwner() bool {
	return m.owner
}

// Key returns the resolved key, which is also the object name.
func (m *Mutex) Key() string {
	return m.key
}

// Path returns the file system path of the shared memory object.
func (m *Mutex) Path() string {
	return m.path
}

// Stale reports whether the key no longer names the object this instance
// mapped, which happens when the owner closed while this instance was
// still attached. A stale Mutex keeps working but is no longer shared with
// processes constructed afterwards.
func (m *Mutex) Stale() (bool, error) {
	m.regionMu.RLock()
	defer m.regionMu.RUnlock()
	if m.closed.Load() {
		return false, ErrClosed
	}
	return shm.Detached(m.region.Fd, m.path)
}

// Close unmaps the object and, if this instance is the owner, removes it
// from the namespace. It never fails; problems are logged. Calling Close
// more than once is a no-op.
func (m *Mutex) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	if debugMode {
		DebugSegmentDetail(m.path)
	}
	m.regionMu.Lock()
	m.release()
	m.regionMu.Unlock()
	segmentsOpen.WithLabelValues(roleLabel(m.owner)).Dec()
}

func (m *Mutex) release() {
	remove := m.owner
	if remove {
		if detached, err := shm.Detached(m.region.Fd, m.path); err == nil && detached {
			internalLogger.infof("%s: name no longer refers to this object, leaving it", m.path)
			remove = false
		}
	}
	if err := shm.UnmapRegion(context.Background(), m.region); err != nil {
		internalLogger.warnf("%s: unmap: %v", m.path, err)
	}
	if !remove {
		return
	}
	if err := shm.RemoveRegion(m.path); err != nil {
		internalLogger.warnf("%s: remove: %v", m.path, err)
	} else {
		internalLogger.infof("removed %s", m.path)
	}
}
