// Package session bridges identity-provider session events into
// process-wide authentication state.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"inkwell/core/internal/identity"
)

// State is the process-wide authentication state. It has exactly one
// writer, the Synchronizer; everything else reads. Current returns nil
// both before the first resolution and when signed out; Resolved
// distinguishes the two.
type State struct {
	mu       sync.RWMutex
	resolved bool
	user     *identity.AuthUser
}

func NewState() *State {
	return &State{}
}

// Current returns the authenticated user, or nil when signed out.
func (s *State) Current() *identity.AuthUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// Resolved reports whether the first provider response has been applied.
func (s *State) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

func (s *State) set(user *identity.AuthUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = true
	s.user = user
}

// Synchronizer owns State and keeps it consistent with the identity
// provider: one initial resolution, then last-event-wins for the rest of
// its lifetime.
type Synchronizer struct {
	provider identity.Provider
	state    *State
	log      *zap.Logger
	done     chan struct{}
}

func NewSynchronizer(provider identity.Provider, state *State, log *zap.Logger) *Synchronizer {
	return &Synchronizer{
		provider: provider,
		state:    state,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start resolves the current session and publishes the result before
// returning, so callers never observe unresolved state after it. A failed
// initial query publishes signed-out rather than staying unknown. It then
// consumes provider events until ctx is cancelled; the subscription is
// released when the consuming goroutine exits.
func (s *Synchronizer) Start(ctx context.Context) {
	// Subscribe before the initial query so no event between the two can
	// be missed; queued events are applied after and overwrite it anyway.
	events, unsubscribe := s.provider.Subscribe()

	current, err := s.provider.CurrentSession(ctx)
	if err != nil {
		s.log.Warn("initial session query failed, treating as signed out", zap.Error(err))
		current = nil
	}
	s.apply(sessionUser(current))

	go func() {
		defer close(s.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				s.apply(sessionUser(event.Session))
			}
		}
	}()
}

// Done is closed once the event loop has stopped and the subscription is
// released.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

func (s *Synchronizer) apply(user *identity.AuthUser) {
	s.state.set(user)
}

func sessionUser(session *identity.Session) *identity.AuthUser {
	if session == nil {
		return nil
	}
	user := session.User
	return &user
}
