//go:build unix

package lifecycle

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardCloseOrder(t *testing.T) {
	g := NewGuard()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		g.Add(func() { order = append(order, i) })
	}
	g.Close()
	g.Close()
	assert.Equal(t, []int{2, 1, 0}, order)

	// late registrations run right away
	g.Add(func() { order = append(order, 9) })
	assert.Equal(t, []int{2, 1, 0, 9}, order)
}

func TestGuardConcurrentClose(t *testing.T) {
	g := NewGuard()
	var mu sync.Mutex
	runs := 0
	g.Add(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, runs)
}

func TestWatchContext(t *testing.T) {
	g := NewGuard()
	closed := make(chan struct{})
	g.Add(func() { close(closed) })

	ctx, cancel := context.WithCancel(context.Background())
	g.Watch(ctx, func(os.Signal) { t.Error("no signal was sent") }, syscall.SIGUSR2)
	cancel()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("guard was not closed")
	}
}

func TestWatchSignal(t *testing.T) {
	g := NewGuard()
	closed := make(chan struct{})
	g.Add(func() { close(closed) })

	got := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Watch(ctx, func(sig os.Signal) { got <- sig }, syscall.SIGUSR1)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case sig := <-got:
		assert.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("signal was not delivered")
	}
	<-closed
}
