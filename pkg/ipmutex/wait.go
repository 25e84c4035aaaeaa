package ipmutex

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errBusy signals a failed TryLock to the retry loop.
var errBusy = errors.New("ipmutex: lock is held")

const (
	waitInitialInterval = 100 * time.Microsecond
	waitMaxInterval     = 50 * time.Millisecond
)

// LockContext acquires the lock, giving up when ctx is done. It polls TryLock
// with exponential backoff instead of blocking in Lock, so it never takes a
// lock over from a holder that died; use Lock for that.
func (m *Mutex) LockContext(ctx context.Context) error {
	if m.closed.Load() {
		return newError(OpLock, m.key, m.path, ErrClosed)
	}
	return lockContext(ctx, m)
}

func lockContext(ctx context.Context, l Locker) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = waitInitialInterval
	eb.MaxInterval = waitMaxInterval
	eb.MaxElapsedTime = 0

	op := func() error {
		if l.TryLock() {
			return nil
		}
		return errBusy
	}
	if err := backoff.Retry(op, backoff.WithContext(eb, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
