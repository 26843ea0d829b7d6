package run

import "sync"

// Registry tracks the in-flight process handles of the current run so a
// cancel request can target all of them without holding closures over live
// handles. Handles are added on spawn and removed once their process settles.
type Registry struct {
	mu      sync.Mutex
	nextID  int
	handles map[int]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int]Handle)}
}

// Add registers a handle and returns its run-scoped ID.
func (r *Registry) Add(h Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handles[r.nextID] = h
	return r.nextID
}

// Remove drops a settled handle.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Len reports the number of in-flight handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// TerminateAll sends a termination request to every in-flight handle. It
// does not wait: a process ignoring the signal surfaces through its own
// exit.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		_ = h.Terminate()
	}
}
