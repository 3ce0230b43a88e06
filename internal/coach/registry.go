package coach

import (
	"context"
	"log/slog"
	"sync"

	"github.com/myrjola/coachline/internal/cache"
	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/gateway"
	"github.com/myrjola/coachline/internal/storage"
)

// Registry keeps one Session per identity, or per device for anonymous users.
type Registry struct {
	factory      *gateway.Factory
	catalogue    *discovery.Catalogue
	cache        *cache.Cache
	collaborator Collaborator
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(
	factory *gateway.Factory,
	catalogue *discovery.Catalogue,
	responses *cache.Cache,
	collaborator Collaborator,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		factory:      factory,
		catalogue:    catalogue,
		cache:        responses,
		collaborator: collaborator,
		logger:       logger,
		mu:           sync.Mutex{},
		sessions:     map[string]*Session{},
	}
}

func sessionKey(identity string, deviceID string) string {
	if storage.IsRealIdentity(identity) {
		return "user:" + identity
	}
	return "device:" + deviceID
}

// Session returns the session of the caller, composing it on first use.
//
// Composing an authenticated session loads the stored profile, so it happens outside the lock. When two
// requests race, the first session stored wins.
func (r *Registry) Session(ctx context.Context, identity string, deviceID string) *Session {
	key := sessionKey(identity, deviceID)
	r.mu.Lock()
	s, ok := r.sessions[key]
	r.mu.Unlock()
	if ok {
		return s
	}

	composed := NewSession(ctx, r.factory.ForSession(identity, deviceID), r.catalogue, r.cache, r.collaborator, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[key]; ok {
		return s
	}
	r.sessions[key] = composed
	return composed
}

// Reset drops an anonymous caller's session so that the next request composes a fresh one, restarting
// discovery. Authenticated sessions are kept; their engine already holds the stored state, and a second engine
// for the same identity would race it on profile writes.
func (r *Registry) Reset(identity string, deviceID string) {
	if storage.IsRealIdentity(identity) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey(identity, deviceID))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
