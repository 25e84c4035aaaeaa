package ipmutex

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type registryEntry struct {
	mu   *Mutex
	refs int
}

// Registry keeps at most one Mutex per key in this process and shares it
// between callers. Lookups are lock-free; opening and releasing serialize.
type Registry struct {
	config *Config
	mu     sync.Mutex
	locks  cmap.ConcurrentMap[string, *registryEntry]
}

// NewRegistry returns an empty Registry constructing mutexes with config.
// A nil config means DefaultConfig().
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	return &Registry{
		config: config,
		locks:  cmap.New[*registryEntry](),
	}
}

// Open returns the Mutex for key, constructing it on first use. Every
// successful Open must be paired with a Release.
func (r *Registry) Open(key string) (*Mutex, error) {
	resolved, err := resolveKey(key)
	if err != nil {
		return nil, newError(OpCreate, key, "", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.locks.Get(resolved); ok {
		e.refs++
		return e.mu, nil
	}
	m, err := NewWithConfig(resolved, r.config)
	if err != nil {
		return nil, err
	}
	r.locks.Set(resolved, &registryEntry{mu: m, refs: 1})
	return m, nil
}

// Release drops one reference to key and closes its Mutex when none are
// left. It reports whether key was open.
func (r *Registry) Release(key string) bool {
	resolved, err := resolveKey(key)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.locks.Get(resolved)
	if !ok {
		return false
	}
	e.refs--
	if e.refs == 0 {
		r.locks.Remove(resolved)
		e.mu.Close()
		ForgetMetrics(resolved)
	}
	return true
}

// Get returns the open Mutex for key without taking a reference.
func (r *Registry) Get(key string) (*Mutex, bool) {
	resolved, err := resolveKey(key)
	if err != nil {
		return nil, false
	}
	e, ok := r.locks.Get(resolved)
	if !ok {
		return nil, false
	}
	return e.mu, true
}

// Len returns the number of open keys.
func (r *Registry) Len() int {
	return r.locks.Count()
}

// Keys returns the open keys in no particular order.
func (r *Registry) Keys() []string {
	return r.locks.Keys()
}

// Each calls fn for every open Mutex.
func (r *Registry) Each(fn func(*Mutex)) {
	for t := range r.locks.IterBuffered() {
		fn(t.Val.mu)
	}
}

// Close closes every open Mutex regardless of outstanding references.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.locks.Keys() {
		if e, ok := r.locks.Pop(key); ok {
			e.mu.Close()
		}
	}
}
