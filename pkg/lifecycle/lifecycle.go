// Package lifecycle releases process-wide resources, such as owned shared
// memory objects, on every exit path including termination signals.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// Guard runs registered cleanup functions once, in reverse order of
// registration.
type Guard struct {
	mu      sync.Mutex
	closers []func()
	done    bool
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Add registers fn. If the guard already ran, fn runs immediately.
func (g *Guard) Add(fn func()) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		fn()
		return
	}
	g.closers = append(g.closers, fn)
	g.mu.Unlock()
}

// Close runs the registered functions. Later calls do nothing.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	closers := g.closers
	g.closers = nil
	g.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// Watch closes the guard in the background when one of sigs arrives or ctx
// is done. onSignal, if not nil, runs after the guard closed because of a
// signal.
func (g *Guard) Watch(ctx context.Context, onSignal func(os.Signal), sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			g.Close()
			if onSignal != nil {
				onSignal(sig)
			}
		case <-ctx.Done():
			g.Close()
		}
	}()
}
