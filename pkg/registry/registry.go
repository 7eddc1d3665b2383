package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wpsteward/steward/pkg/types"
)

// Registry holds verified SSH sessions keyed by opaque id. Sessions are
// process-local; a restart empties the registry and clients re-verify.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// New creates an empty session registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*types.Session)}
}

// Add stores a verified site record and returns its session.
func (r *Registry) Add(site types.SiteRecord, uname string) *types.Session {
	session := &types.Session{
		ID:        uuid.NewString(),
		Site:      site,
		Uname:     uname,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session
}

// Get returns the session for an id.
func (r *Registry) Get(id string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete evicts a session. Missing ids are a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
