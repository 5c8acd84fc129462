package session

import (
	"errors"
	"time"
)

// Persisted key names.
const (
	KeyTempToken    = "temp_token"
	KeyTempRoles    = "temp_roles"
	KeyPendingEmail = "pending_email"
	KeyToken        = "token"
	KeyRoles        = "roles"
)

// AllKeys lists every key a [Store] reads or writes.
var AllKeys = []string{KeyTempToken, KeyTempRoles, KeyPendingEmail, KeyToken, KeyRoles}

var (
	// ErrNoPendingSession is returned when an operation requires a pending session.
	ErrNoPendingSession = errors.New("no pending session")
	// ErrAlreadyAuthenticated is returned when a final session already exists.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrEmptyToken is returned when a session or pending session has no token.
	ErrEmptyToken = errors.New("empty token")
	// ErrBackendUnavailable wraps persistence failures.
	ErrBackendUnavailable = errors.New("session backend unavailable")
)

// Session is the final, authenticated session.
//
// Subject and ExpiresAt are decoded from the token claims when the token is
// shaped like a signed token; they are never persisted.
type Session struct {
	Token string
	Roles []string

	Subject   string
	ExpiresAt time.Time
}

// Pending is the state between a successful password check and a verified
// one-time code.
type Pending struct {
	TempToken string
	TempRoles []string
	Email     string
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Roles = append([]string(nil), s.Roles...)
	return &out
}

func (p *Pending) clone() *Pending {
	if p == nil {
		return nil
	}
	out := *p
	out.TempRoles = append([]string(nil), p.TempRoles...)
	return &out
}
