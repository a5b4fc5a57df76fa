package usecases

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session registry defaults.
const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// SessionOptions bounds a SessionRegistry. Zero values select defaults.
type SessionOptions struct {
	IdleTTL     time.Duration
	MaxSessions int
}

// SessionRegistry hands out one Orchestrator per conversation session.
// Sessions idle for longer than IdleTTL are dropped, and when MaxSessions is
// reached the least recently used session makes room for a new one.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  func() *Orchestrator
	ttl      time.Duration
	max      int
	lastGC   time.Time
	now      func() time.Time
}

type session struct {
	orchestrator *Orchestrator
	lastSeen     time.Time
}

// NewSessionRegistry creates a registry that builds orchestrators with factory.
func NewSessionRegistry(factory func() *Orchestrator, opts SessionOptions) *SessionRegistry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &SessionRegistry{
		sessions: make(map[string]*session),
		factory:  factory,
		ttl:      opts.IdleTTL,
		max:      opts.MaxSessions,
		lastGC:   time.Now(),
		now:      time.Now,
	}
}

// Get returns the orchestrator for id, creating a session when id is empty
// or unknown. The returned id is the one the caller should reuse.
func (r *SessionRegistry) Get(id string) (string, *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	if id == "" {
		id = uuid.NewString()
	}
	s, ok := r.sessions[id]
	if !ok {
		if len(r.sessions) >= r.max {
			r.evictOldest()
		}
		s = &session{orchestrator: r.factory()}
		r.sessions[id] = s
	}
	s.lastSeen = now
	return id, s.orchestrator
}

// Lookup returns the orchestrator for an existing session.
func (r *SessionRegistry) Lookup(id string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = now
	return s.orchestrator, true
}

// Delete ends a session and drops its memory.
func (r *SessionRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ResetAll clears the memory of every session. Used after a data refresh,
// since earlier answers may cite figures that no longer exist.
func (r *SessionRegistry) ResetAll() {
	r.mu.Lock()
	orchestrators := make([]*Orchestrator, 0, len(r.sessions))
	for _, s := range r.sessions {
		orchestrators = append(orchestrators, s.orchestrator)
	}
	r.mu.Unlock()

	for _, o := range orchestrators {
		o.Reset()
	}
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep(r.now())
	return len(r.sessions)
}

// sweep drops idle sessions, at most once per TTL. Callers hold mu.
func (r *SessionRegistry) sweep(now time.Time) {
	if now.Sub(r.lastGC) < r.ttl {
		return
	}
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.ttl {
			delete(r.sessions, id)
		}
	}
	r.lastGC = now
}

// evictOldest drops the least recently used session. Callers hold mu.
func (r *SessionRegistry) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range r.sessions {
		if oldestID == "" || s.lastSeen.Before(oldest) {
			oldestID, oldest = id, s.lastSeen
		}
	}
	delete(r.sessions, oldestID)
}
