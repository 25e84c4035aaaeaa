// Package health exposes liveness and readiness of the named mutexes held by
// a process over HTTP.
package health

import (
	"errors"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/ipmutex/internal/shm"
	"github.com/srediag/ipmutex/pkg/ipmutex"
)

const (
	defaultGoroutineThreshold = 10000
	checkTimeout              = time.Second
)

// Source enumerates the mutexes to report on. *ipmutex.Registry implements it.
type Source interface {
	Each(fn func(*ipmutex.Mutex))
}

// Options configures NewHandler.
type Options struct {
	// Registerer receives the healthcheck status gauges. Nil disables them.
	Registerer prometheus.Registerer
	// Namespace prefixes the gauges.
	Namespace string
	// Dir is the shared memory directory checked for free space.
	Dir string
	// MinFree is the free space Dir must have to be ready.
	MinFree uint64
	// GoroutineThreshold fails liveness above this many goroutines.
	GoroutineThreshold int
}

// NewHandler returns a handler serving /live and /ready. Liveness fails when
// any mutex from src has become stale; readiness fails when Dir is too full
// to create another object.
func NewHandler(src Source, opts Options) healthcheck.Handler {
	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, opts.Namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	if opts.GoroutineThreshold <= 0 {
		opts.GoroutineThreshold = defaultGoroutineThreshold
	}
	if opts.Dir == "" {
		opts.Dir = shm.DefaultDir()
	}
	if opts.MinFree == 0 {
		opts.MinFree = ipmutex.Size
	}

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.GoroutineThreshold))
	h.AddLivenessCheck("segments", healthcheck.Timeout(SegmentsCheck(src), checkTimeout))
	h.AddReadinessCheck("shm-free-space", healthcheck.Timeout(FreeSpaceCheck(opts.Dir, opts.MinFree), checkTimeout))
	return h
}

// SegmentsCheck fails if any mutex from src no longer shares its object
// with newly constructed instances. Mutexes closed in the meantime are
// skipped.
func SegmentsCheck(src Source) healthcheck.Check {
	return func() error {
		var err error
		src.Each(func(m *ipmutex.Mutex) {
			if err != nil {
				return
			}
			stale, serr := m.Stale()
			switch {
			case errors.Is(serr, ipmutex.ErrClosed):
				// released while the check ran
			case serr != nil:
				err = fmt.Errorf("%s: %w", m.Key(), serr)
			case stale:
				err = fmt.Errorf("%s: object %s was removed by its owner", m.Key(), m.Path())
			}
		})
		return err
	}
}

// FreeSpaceCheck fails when dir has less than minFree bytes available.
func FreeSpaceCheck(dir string, minFree uint64) healthcheck.Check {
	return func() error {
		free, err := shm.FreeSpace(dir)
		if err != nil {
			return err
		}
		if free < minFree {
			return fmt.Errorf("%s has %d bytes free, need %d", dir, free, minFree)
		}
		return nil
	}
}
