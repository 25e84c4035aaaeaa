// Package ipmutex provides a named mutex shared by independent processes on
// the same host.
//
// A Mutex is identified by a key. The first process to construct a Mutex for
// a key creates a shared memory object named after it and becomes its owner;
// every later process attaches to the same object. All of them serialize on
// the lock word stored inside it.
//
// The owner initializes the lock word during construction and removes the
// object when closed. It must therefore be constructed before the key is
// handed to other processes, and it must outlive them:
//
//	mu, err := ipmutex.New("jobs")
//	if err != nil {
//	    return err
//	}
//	defer mu.Close()
//
//	if err := mu.Lock(); err != nil {
//	    return err
//	}
//	defer mu.Unlock()
//
// Attachers do not wait for the owner to finish initialization; an object
// that is still smaller than the lock word is refused with ErrSegmentNotReady.
//
// Lock has no timeout. LockContext polls TryLock with exponential backoff for
// callers that need bounded waiting.
package ipmutex
