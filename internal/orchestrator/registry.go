package orchestrator

import "sync"

// Registry holds the live sessions keyed by call id. It only guards the
// map; per-session state has its own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*CallSession)}
}

// GetOrCreate returns the existing session for id, or installs the one
// produced by build. The second return is true when a new session was
// installed, so duplicate webhook deliveries can be told apart from first
// deliveries.
func (r *Registry) GetOrCreate(id string, build func() *CallSession) (*CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, false
	}
	sess := build()
	r.sessions[id] = sess
	return sess, true
}

func (r *Registry) Get(id string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// List returns the current sessions in no particular order.
func (r *Registry) List() []*CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
