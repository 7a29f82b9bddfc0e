package scheduler

import (
	"sync"
)

// HandleKind identifies the trigger behind a handle
type HandleKind string

const (
	KindCron     HandleKind = "cron"
	KindInterval HandleKind = "interval"
	KindOneShot  HandleKind = "oneshot"
)

// Handle is a live trigger owned by one schedule
type Handle struct {
	Kind   HandleKind
	cancel func()
	seq    uint64
}

// Cancel stops the trigger
func (h Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Registry holds at most one live handle per schedule id
type Registry struct {
	mu      sync.Mutex
	handles map[uint]Handle
	seq     uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handles: make(map[uint]Handle)}
}

// Put stores the handle, cancelling any handle already registered for the id.
// The returned sequence number identifies this registration.
func (r *Registry) Put(id uint, kind HandleKind, cancel func()) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[id]; ok {
		old.Cancel()
	}
	r.seq++
	r.handles[id] = Handle{Kind: kind, cancel: cancel, seq: r.seq}
	return r.seq
}

// Remove cancels and forgets the handle for id. It reports whether one existed.
func (r *Registry) Remove(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	if !ok {
		return false
	}
	h.Cancel()
	delete(r.handles, id)
	return true
}

// forget drops the registration seq without cancelling it, if it is still current
func (r *Registry) forget(id uint, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[id]; ok && h.seq == seq {
		delete(r.handles, id)
	}
}

// Get returns the handle registered for id
func (r *Registry) Get(id uint) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	return h, ok
}

// Len returns the number of live handles
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Clear cancels every handle
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.handles {
		h.Cancel()
		delete(r.handles, id)
	}
}
