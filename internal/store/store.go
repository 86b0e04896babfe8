// Package store holds the canonical in-memory session state and fans out
// change notifications. Persistence is write-through: the storage adapter is
// only consulted on restore, never treated as the source of truth while the
// process is running.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/SchemaBio/schema-platform-sub003/internal/adapters/storage"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/expiry"
)

// Listener receives a snapshot after every state transition. Listeners are
// invoked synchronously in subscription order; the order is not part of the
// contract.
type Listener func(state domain.AuthState)

// Store is the single source of truth for session state.
type Store struct {
	mu        sync.Mutex
	state     domain.AuthState
	listeners map[int]Listener
	nextID    int
	storage   storage.Adapter
	logger    zerolog.Logger
}

// New returns a Store in the initial loading state, backed by the given
// storage adapter.
func New(adapter storage.Adapter, logger zerolog.Logger) *Store {
	return &Store{
		state:     domain.AuthState{IsLoading: true},
		listeners: map[int]Listener{},
		storage:   adapter,
		logger:    logger,
	}
}

// GetState returns a snapshot of the current state. The snapshot owns its
// User and Tokens copies; mutating it does not affect the store.
func (s *Store) GetState() domain.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.state)
}

// Subscribe registers a listener and returns its unsubscribe function.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetAuth adopts a freshly authenticated session and persists it.
func (s *Store) SetAuth(user *domain.User, tokens *domain.AuthToken) {
	s.mu.Lock()
	s.state = domain.AuthState{User: user, Tokens: tokens, IsAuthenticated: true}
	snap := snapshot(s.state)
	s.mu.Unlock()

	s.storage.StoreAuthData(&domain.StoredAuthData{User: user, Tokens: tokens})
	s.notify(snap)
}

// ClearAuth resets to the signed-out state and removes the persisted session.
func (s *Store) ClearAuth() {
	s.mu.Lock()
	s.state = domain.AuthState{}
	snap := snapshot(s.state)
	s.mu.Unlock()

	s.storage.ClearStoredAuth()
	s.notify(snap)
}

// UpdateTokens swaps the token slice after a refresh. User and the
// authenticated flag are untouched.
func (s *Store) UpdateTokens(tokens *domain.AuthToken) {
	s.mu.Lock()
	s.state.Tokens = tokens
	snap := snapshot(s.state)
	s.mu.Unlock()

	s.storage.UpdateStoredTokens(tokens)
	s.notify(snap)
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.state.IsLoading = loading
	snap := snapshot(s.state)
	s.mu.Unlock()

	s.notify(snap)
}

// RestoreSession adopts a previously persisted session if one exists and its
// token is still valid. Anything else, including a storage failure, clears
// the persisted session and reports false. It never returns an error.
func (s *Store) RestoreSession() bool {
	s.SetLoading(true)

	data := s.storage.GetStoredAuthData()
	if data == nil || !expiry.IsValidToken(data.Tokens) {
		if data != nil {
			s.logger.Info().Msg("stored session expired, clearing")
		}
		s.storage.ClearStoredAuth()
		s.mu.Lock()
		s.state = domain.AuthState{}
		snap := snapshot(s.state)
		s.mu.Unlock()
		s.notify(snap)
		return false
	}

	s.mu.Lock()
	s.state = domain.AuthState{User: data.User, Tokens: data.Tokens, IsAuthenticated: true}
	snap := snapshot(s.state)
	s.mu.Unlock()

	s.logger.Info().Str("user_id", data.User.ID).Msg("session restored")
	s.notify(snap)
	return true
}

// notify runs outside the state lock so a listener may trigger a nested
// update without deadlocking.
func (s *Store) notify(snap domain.AuthState) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func snapshot(state domain.AuthState) domain.AuthState {
	out := domain.AuthState{IsAuthenticated: state.IsAuthenticated, IsLoading: state.IsLoading}
	if state.User != nil {
		u := *state.User
		out.User = &u
	}
	if state.Tokens != nil {
		tok := *state.Tokens
		out.Tokens = &tok
	}
	return out
}
