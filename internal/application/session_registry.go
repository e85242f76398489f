package application

import (
	"sync"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
)

// sessionRegistry caches the active OrderSession of each court so the
// manager board does not hit the store on every refresh. Entries expire so a
// session finished by another process is eventually re-read.
type sessionRegistry struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]sessionEntry
}

type sessionEntry struct {
	session   OrderSession
	expiresAt time.Time
}

func newSessionRegistry(ttl time.Duration, maxEntries int, now func() time.Time) *sessionRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &sessionRegistry{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]sessionEntry),
	}
}

func (r *sessionRegistry) Get(courtID string) (OrderSession, bool) {
	if r == nil {
		return OrderSession{}, false
	}
	r.mu.RLock()
	entry, ok := r.entries[courtID]
	r.mu.RUnlock()
	if !ok {
		return OrderSession{}, false
	}
	if r.now().After(entry.expiresAt) {
		r.mu.Lock()
		if current, still := r.entries[courtID]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(r.entries, courtID)
		}
		r.mu.Unlock()
		return OrderSession{}, false
	}
	return entry.session, true
}

func (r *sessionRegistry) Store(session OrderSession) {
	if r == nil {
		return
	}
	expiry := r.now().Add(r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[session.CourtID]; !exists {
		r.cleanupLocked()
		if len(r.entries) >= r.maxEntries {
			r.evictOneLocked()
		}
	}
	r.entries[session.CourtID] = sessionEntry{session: session, expiresAt: expiry}
}

// Advance moves the cached session of a court to next when the lifecycle
// allows it and returns the updated session.
func (r *sessionRegistry) Advance(courtID string, next lifecycle.SessionPhase) (OrderSession, error) {
	if r == nil {
		return OrderSession{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[courtID]
	if !ok {
		return OrderSession{}, ErrNotFound
	}
	if entry.session.Phase != next {
		phase, err := entry.session.Phase.Transition(next)
		if err != nil {
			return entry.session, err
		}
		entry.session.Phase = phase
	}
	entry.expiresAt = r.now().Add(r.ttl)
	r.entries[courtID] = entry
	return entry.session, nil
}

func (r *sessionRegistry) Remove(courtID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.entries, courtID)
	r.mu.Unlock()
}

func (r *sessionRegistry) cleanupLocked() {
	now := r.now()
	for key, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
}

func (r *sessionRegistry) evictOneLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range r.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(r.entries, oldestKey)
}
