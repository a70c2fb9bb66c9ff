package queue

import "sync"

// CancelRegistry is the shared flag store for cooperative cancellation.
// The execution substrate has no preemptive interrupt: a running job polls
// its flag between documents and pages and stops voluntarily.
//
// Entries have no expiry; whoever drives a job to a terminal outcome must
// call Clear to keep the registry from growing.
type CancelRegistry struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]struct{})}
}

// RequestCancel sets the cancellation flag for a job. Idempotent.
func (r *CancelRegistry) RequestCancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[jobID] = struct{}{}
}

// IsCancelled reports whether cancellation was requested for a job.
func (r *CancelRegistry) IsCancelled(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flags[jobID]
	return ok
}

// Clear removes a job's flag. Idempotent.
func (r *CancelRegistry) Clear(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, jobID)
}

// Len returns the number of outstanding flags.
func (r *CancelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flags)
}
