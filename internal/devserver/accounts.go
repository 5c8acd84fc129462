package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/bcrypt"
)

var (
	errAccountExists   = errors.New("account exists")
	errBadCredentials  = errors.New("bad credentials")
	errUnverified      = errors.New("email not verified")
	errNoAccount       = errors.New("no account")
	errCodeRejected    = errors.New("code rejected")
	errUnknownVerifier = errors.New("unknown verification token")
)

type codeKind int

const (
	codeLogin codeKind = iota
	codeReset
)

type issuedCode struct {
	counter uint64
	expires time.Time
}

type account struct {
	name     string
	email    string
	hash     []byte
	verified bool
	roles    []string

	secret  string
	counter uint64
	codes   map[codeKind]issuedCode
}

// accountSnapshot is a copy handed out of the lock.
type accountSnapshot struct {
	Name  string
	Email string
	Roles []string
}

type accountStore struct {
	cost int
	now  func() time.Time
	opts hotp.ValidateOpts

	mu           sync.Mutex
	accounts     map[string]*account
	verifyTokens map[string]string
	revoked      map[string]time.Time
}

func newAccountStore(cost, codeDigits int, now func() time.Time) *accountStore {
	return &accountStore{
		cost:         cost,
		now:          now,
		opts:         hotp.ValidateOpts{Digits: otp.Digits(codeDigits), Algorithm: otp.AlgorithmSHA1},
		accounts:     make(map[string]*account),
		verifyTokens: make(map[string]string),
		revoked:      make(map[string]time.Time),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// create stores a new account and returns its email verification token.
func (s *accountStore) create(name, email, password string, roles []string, verified bool) (string, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	key, err := hotp.Generate(hotp.GenerateOpts{Issuer: "ledgerauth-dev", AccountName: email})
	if err != nil {
		return "", err
	}
	if len(roles) == 0 {
		roles = []string{"ROLE_USER"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return "", errAccountExists
	}
	s.accounts[email] = &account{
		name:     strings.TrimSpace(name),
		email:    email,
		hash:     hash,
		verified: verified,
		roles:    append([]string(nil), roles...),
		secret:   key.Secret(),
		codes:    make(map[codeKind]issuedCode),
	}
	if verified {
		return "", nil
	}
	token := uuid.NewString()
	s.verifyTokens[token] = email
	return token, nil
}

func (s *accountStore) authenticate(email, password string) (accountSnapshot, error) {
	s.mu.Lock()
	a, ok := s.accounts[normalizeEmail(email)]
	var hash []byte
	var verified bool
	var snap accountSnapshot
	if ok {
		hash, verified, snap = a.hash, a.verified, a.snapshot()
	}
	s.mu.Unlock()

	if !ok {
		return accountSnapshot{}, errBadCredentials
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return accountSnapshot{}, errBadCredentials
	}
	if !verified {
		return accountSnapshot{}, errUnverified
	}
	return snap, nil
}

func (s *accountStore) lookup(email string) (accountSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return accountSnapshot{}, false
	}
	return a.snapshot(), true
}

// issueCode replaces any outstanding code of kind for email.
func (s *accountStore) issueCode(email string, kind codeKind, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return "", errNoAccount
	}
	a.counter++
	code, err := hotp.GenerateCodeCustom(a.secret, a.counter, s.opts)
	if err != nil {
		return "", err
	}
	a.codes[kind] = issuedCode{counter: a.counter, expires: s.now().Add(ttl)}
	return code, nil
}

// consumeCode checks code and deletes it on success. An expired code is
// deleted and rejected.
func (s *accountStore) consumeCode(email string, kind codeKind, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeCodeLocked(normalizeEmail(email), kind, code)
}

func (s *accountStore) consumeCodeLocked(email string, kind codeKind, code string) error {
	a, ok := s.accounts[email]
	if !ok {
		return errCodeRejected
	}
	issued, ok := a.codes[kind]
	if !ok {
		return errCodeRejected
	}
	if !s.now().Before(issued.expires) {
		delete(a.codes, kind)
		return errCodeRejected
	}
	valid, err := hotp.ValidateCustom(code, issued.counter, a.secret, s.opts)
	if err != nil || !valid {
		return errCodeRejected
	}
	delete(a.codes, kind)
	return nil
}

// resetPassword consumes the reset code and stores the new hash.
func (s *accountStore) resetPassword(email, code, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalizeEmail(email)
	if err := s.consumeCodeLocked(email, codeReset, code); err != nil {
		return err
	}
	s.accounts[email].hash = hash
	return nil
}

func (s *accountStore) verifyEmail(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.verifyTokens[token]
	if !ok {
		return errUnknownVerifier
	}
	delete(s.verifyTokens, token)
	if a, ok := s.accounts[email]; ok {
		a.verified = true
	}
	return nil
}

// verificationToken returns an outstanding token for email, if any.
func (s *accountStore) verificationToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalizeEmail(email)
	for token, owner := range s.verifyTokens {
		if owner == email {
			return token
		}
	}
	return ""
}

// revoke blacklists token until expires.
func (s *accountStore) revoke(token string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for t, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, t)
		}
	}
	s.revoked[token] = expires
}

func (s *accountStore) isRevoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[token]
	return ok
}

func (a *account) snapshot() accountSnapshot {
	return accountSnapshot{Name: a.name, Email: a.email, Roles: append([]string(nil), a.roles...)}
}
