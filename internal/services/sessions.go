package services

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Session, one shopper's cart service and toast queue.
type Session struct {
	ID      string
	Cart    *CartService
	Notices *Notices

	lastSeen time.Time
}

// SessionRegistry hands out one Session per session id and tears idle ones down.
type SessionRegistry struct {
	actions CartActions
	opts    []CartOption
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry returns a registry whose sessions share actions and opts.
func NewSessionRegistry(actions CartActions, opts ...CartOption) *SessionRegistry {
	return &SessionRegistry{
		actions:  actions,
		opts:     opts,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Get returns the session for id, creating it on first use, and marks it as seen.
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		notices := NewNotices()
		s = &Session{
			ID:      id,
			Cart:    NewCartService(r.actions, notices, r.opts...),
			Notices: notices,
		}
		r.sessions[id] = s
		log.WithField("session", id).Debug("SessionRegistry.Get - session created")
	}
	s.lastSeen = r.now()
	return s
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict closes and forgets every session unused for longer than idle.
func (r *SessionRegistry) Evict(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			s.Cart.Close()
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		log.WithFields(log.Fields{"evicted": n, "live": len(r.sessions)}).Info("SessionRegistry.Evict - idle sessions closed")
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Evict(idle)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes every session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Cart.Close()
		delete(r.sessions, id)
	}
}
