package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Store is the single writer of persisted authentication state.
//
// Reads are served from the last loaded or written view. Writes go to the
// backend first and update the view only when the backend accepts them.
type Store struct {
	backend Backend
	logger  zerolog.Logger

	mu      sync.RWMutex
	current *Session
	pending *Pending
}

// NewStore wraps backend. Call [Store.Load] to pick up previously persisted
// state.
func NewStore(backend Backend, logger zerolog.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Load re-reads all keys from the backend.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	values, err := s.backend.Get(ctx, AllKeys...)
	if err != nil {
		return wrapBackend(err)
	}

	s.current = nil
	if token := strings.TrimSpace(values[KeyToken]); token != "" {
		roles, err := decodeRoles(values[KeyRoles])
		if err != nil {
			s.logger.Warn().Str("key", KeyRoles).Msg("ignoring undecodable persisted roles")
		}
		sess := withDerived(Session{Token: token, Roles: roles})
		s.current = &sess
	}

	s.pending = nil
	if temp := strings.TrimSpace(values[KeyTempToken]); temp != "" {
		roles, err := decodeRoles(values[KeyTempRoles])
		if err != nil {
			s.logger.Warn().Str("key", KeyTempRoles).Msg("ignoring undecodable persisted roles")
		}
		s.pending = &Pending{
			TempToken: temp,
			TempRoles: roles,
			Email:     values[KeyPendingEmail],
		}
	}
	return nil
}

// Current returns a copy of the final session, or nil.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Pending returns a copy of the pending session, or nil.
func (s *Store) Pending() *Pending {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.clone()
}

// IsAuthenticated reports whether a final session with a non-empty token exists.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.Token != ""
}

// BeginPending persists p, replacing any earlier pending session.
func (s *Store) BeginPending(ctx context.Context, p Pending) error {
	if strings.TrimSpace(p.TempToken) == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if s.current != nil {
		return ErrAlreadyAuthenticated
	}

	m := Mutation{
		Set: map[string]string{
			KeyTempToken:    p.TempToken,
			KeyTempRoles:    encodeRoles(p.TempRoles),
			KeyPendingEmail: p.Email,
		},
	}
	if err := s.backend.Apply(ctx, m); err != nil {
		return wrapBackend(err)
	}
	s.pending = p.clone()
	return nil
}

// ClearPending deletes the pending keys. It is a no-op when none exist.
func (s *Store) ClearPending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Mutation{Delete: []string{KeyTempToken, KeyTempRoles, KeyPendingEmail}}
	if err := s.backend.Apply(ctx, m); err != nil {
		return wrapBackend(err)
	}
	s.pending = nil
	return nil
}

// Establish persists sess as the final session and deletes the pending keys
// in the same mutation.
func (s *Store) Establish(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.establishLocked(ctx, sess)
}

// EstablishFromPending is [Store.Establish] guarded by the pending/final
// rule: it fails with [ErrNoPendingSession] when no pending session exists
// and [ErrAlreadyAuthenticated] when a final session does. Check and write
// happen under one lock, so of two concurrent callers at most one succeeds.
func (s *Store) EstablishFromPending(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if s.current != nil {
		return ErrAlreadyAuthenticated
	}
	if s.pending == nil {
		return ErrNoPendingSession
	}
	return s.establishLocked(ctx, sess)
}

func (s *Store) establishLocked(ctx context.Context, sess Session) error {
	m := Mutation{
		Set: map[string]string{
			KeyToken: sess.Token,
			KeyRoles: encodeRoles(sess.Roles),
		},
		Delete: []string{KeyTempToken, KeyTempRoles, KeyPendingEmail},
	}
	if err := s.backend.Apply(ctx, m); err != nil {
		return wrapBackend(err)
	}

	stored := withDerived(Session{Token: sess.Token, Roles: append([]string(nil), sess.Roles...)})
	s.current = &stored
	s.pending = nil
	return nil
}

// Clear deletes all five keys. It is the only way a final session ends.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Apply(ctx, Mutation{Delete: AllKeys}); err != nil {
		return wrapBackend(err)
	}
	s.current = nil
	s.pending = nil
	return nil
}

// ClearIf clears everything, like Clear, but only while the persisted final
// session still carries token. It re-reads the backend first so a login made
// by another process is not wiped. It reports whether it cleared.
func (s *Store) ClearIf(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	if token == "" || s.current == nil || s.current.Token != token {
		return false, nil
	}
	if err := s.backend.Apply(ctx, Mutation{Delete: AllKeys}); err != nil {
		return false, wrapBackend(err)
	}
	s.current = nil
	s.pending = nil
	return true, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func wrapBackend(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
