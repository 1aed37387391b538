package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("wizard: session not found")

type entry struct {
	session  *Session
	owner    string
	lastSeen time.Time
}

// Registry owns the live sessions and expires idle ones.
type Registry struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates a registry. A zero ttl keeps sessions until deleted.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{deps: deps, ttl: ttl, now: now, sessions: make(map[string]*entry)}
}

// Create starts a session for the user in ctx.
func (r *Registry) Create(ctx context.Context) *Session {
	id := uuid.NewString()
	s := NewSession(ctx, id, r.deps)
	owner := ""
	if u, ok := identity.UserFromContext(ctx); ok {
		owner = u.Subject
	}
	r.mu.Lock()
	r.sessions[id] = &entry{session: s, owner: owner, lastSeen: r.now()}
	r.mu.Unlock()
	return s
}

// Get returns a live session owned by the user in ctx and marks it used.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	owner := ""
	if u, ok := identity.UserFromContext(ctx); ok {
		owner = u.Subject
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.owner != owner || r.expired(e) {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// Delete closes and forgets a session.
func (r *Registry) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	s.Close()
	return nil
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes expired sessions and returns how many it removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var stale []*Session
	for id, e := range r.sessions {
		if r.expired(e) {
			stale = append(stale, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.deps.Logger.Component("wizard").Info("expired wizard sessions", "count", n)
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.session.Close()
	}
}

func (r *Registry) expired(e *entry) bool {
	return r.ttl > 0 && r.now().Sub(e.lastSeen) > r.ttl
}
