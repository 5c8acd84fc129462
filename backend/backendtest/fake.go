// Package backendtest provides an in-memory behavioural implementation of
// backend.API for flow tests.
package backendtest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/ledgerAuth/backend"
	"github.com/MrEthical07/ledgerAuth/jwt"
	"github.com/google/uuid"
)

// Method names accepted by the failure, response, and hook setters.
const (
	MethodSubmitCredentials = "SubmitCredentials"
	MethodVerifyCode        = "VerifyCode"
	MethodDispatchCode      = "DispatchCode"
	MethodCreateAccount     = "CreateAccount"
	MethodVerifyEmail       = "VerifyEmail"
	MethodRequestReset      = "RequestReset"
	MethodResetWithCode     = "ResetWithCode"
	MethodLogout            = "Logout"
)

// Server messages, matching the backing service wording.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgUnverified         = "Please verify your email before logging in."
	MsgInvalidOTP         = "Invalid or expired OTP"
	MsgEmailTaken         = "Email is already registered"
	MsgSignupOK           = "Registration successful. Please check your email to verify your account."
	MsgInvalidVerifyToken = "Invalid or expired verification token"
	MsgVerified           = "Email verified successfully. You can now log in."
	MsgResetRequested     = "If an account exists for that email, a reset code has been sent."
	MsgResetOK            = "Password has been reset successfully."
	MsgPasswordsDiffer    = "Passwords do not match"
	MsgLoggedOut          = "Logged out successfully"
)

const jwtTTL = time.Hour

// Account is a user known to the fake.
type Account struct {
	Name     string
	Email    string
	Password string
	Verified bool
	Roles    []string
}

// Fake implements backend.API in memory. It is safe for concurrent use.
type Fake struct {
	signer *jwt.Signer

	mu           sync.Mutex
	accounts     map[string]*Account
	loginCodes   map[string]string
	resetCodes   map[string]string
	verifyTokens map[string]string
	revoked      map[string]struct{}
	codeSeq      int
	calls        map[string]int
	failures     map[string]error
	failOnce     map[string]error
	responses    map[string]backend.AuthResponse
	hooks        map[string]func(context.Context)
}

var _ backend.API = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	signer, err := jwt.NewSigner(jwt.SignerConfig{
		Secret: []byte("backendtest-signing-secret-0123456789"),
		TTL:    jwtTTL,
		Issuer: "backendtest",
	})
	if err != nil {
		panic(err)
	}
	return &Fake{
		signer:       signer,
		accounts:     make(map[string]*Account),
		loginCodes:   make(map[string]string),
		resetCodes:   make(map[string]string),
		verifyTokens: make(map[string]string),
		revoked:      make(map[string]struct{}),
		calls:        make(map[string]int),
		failures:     make(map[string]error),
		failOnce:     make(map[string]error),
		responses:    make(map[string]backend.AuthResponse),
		hooks:        make(map[string]func(context.Context)),
	}
}

// AddAccount registers or replaces an account. Roles default to ROLE_USER.
func (f *Fake) AddAccount(a Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(a.Roles) == 0 {
		a.Roles = []string{"ROLE_USER"}
	}
	a.Email = normalizeEmail(a.Email)
	cp := a
	f.accounts[a.Email] = &cp
}

// Account returns a copy of the account for email.
func (f *Fake) Account(email string) (Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[normalizeEmail(email)]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// LoginCode returns the outstanding login code for email.
func (f *Fake) LoginCode(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCodes[normalizeEmail(email)]
}

// ResetCode returns the outstanding reset code for email.
func (f *Fake) ResetCode(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetCodes[normalizeEmail(email)]
}

// VerificationToken returns the outstanding email verification token.
func (f *Fake) VerificationToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = normalizeEmail(email)
	for token, owner := range f.verifyTokens {
		if owner == email {
			return token
		}
	}
	return ""
}

// IsRevoked reports whether token was logged out.
func (f *Fake) IsRevoked(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[token]
	return ok
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of invocations across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Fail makes every call to method return err until cleared with a nil err.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// FailNext makes the next call to method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[method] = err
}

// Respond makes every successful SubmitCredentials or VerifyCode call return
// resp verbatim instead of the computed response.
func (f *Fake) Respond(method string, resp backend.AuthResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = resp
}

// Hook runs fn at the start of every call to method, before any state is
// read. A hook that blocks holds the call in flight.
func (f *Fake) Hook(method string, fn func(context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fn == nil {
		delete(f.hooks, method)
		return
	}
	f.hooks[method] = fn
}

// Unreachable returns an error shaped like a network failure.
func Unreachable() error {
	return fmt.Errorf("%w: connection refused", backend.ErrUnreachable)
}

// Status returns a StatusError for endpoint.
func Status(endpoint string, status int, detail string) error {
	return &backend.StatusError{Endpoint: endpoint, Status: status, Detail: detail}
}

// begin records the call and returns any injected failure.
func (f *Fake) begin(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hooks[method]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOnce[method]; ok {
		delete(f.failOnce, method)
		return err
	}
	return f.failures[method]
}

func (f *Fake) SubmitCredentials(ctx context.Context, req backend.Credentials) (backend.AuthResponse, error) {
	if err := f.begin(ctx, MethodSubmitCredentials); err != nil {
		return backend.AuthResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	endpoint := backend.DefaultPaths().Login
	a, ok := f.accounts[normalizeEmail(req.Email)]
	if !ok || a.Password != req.Password {
		return backend.AuthResponse{}, Status(endpoint, http.StatusUnauthorized, MsgInvalidCredentials)
	}
	if !a.Verified {
		return backend.AuthResponse{}, Status(endpoint, http.StatusForbidden, MsgUnverified)
	}

	token, err := f.signer.Sign(a.Email, jwt.StagePassword, a.Roles)
	if err != nil {
		return backend.AuthResponse{}, Status(endpoint, http.StatusInternalServerError, err.Error())
	}
	f.loginCodes[a.Email] = f.nextCodeLocked()

	if resp, ok := f.responses[MethodSubmitCredentials]; ok {
		return resp, nil
	}
	return backend.AuthResponse{Token: token, Roles: append([]string(nil), a.Roles...), Verified: boolPtr(true)}, nil
}

func (f *Fake) VerifyCode(ctx context.Context, req backend.CodeRequest) (backend.AuthResponse, error) {
	if err := f.begin(ctx, MethodVerifyCode); err != nil {
		return backend.AuthResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	endpoint := backend.DefaultPaths().VerifyCode
	email := normalizeEmail(req.Email)
	code, ok := f.loginCodes[email]
	if !ok || code != req.OTP {
		return backend.AuthResponse{}, Status(endpoint, http.StatusUnauthorized, MsgInvalidOTP)
	}
	a := f.accounts[email]
	delete(f.loginCodes, email)

	if resp, ok := f.responses[MethodVerifyCode]; ok {
		return resp, nil
	}
	token, err := f.signer.Sign(a.Email, jwt.StageComplete, a.Roles)
	if err != nil {
		return backend.AuthResponse{}, Status(endpoint, http.StatusInternalServerError, err.Error())
	}
	// The code exchange reports bare role names.
	bare := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		bare = append(bare, strings.TrimPrefix(r, "ROLE_"))
	}
	return backend.AuthResponse{Token: token, Roles: bare, Verified: boolPtr(true)}, nil
}

func (f *Fake) DispatchCode(ctx context.Context, bearer string, req backend.EmailRequest) error {
	if err := f.begin(ctx, MethodDispatchCode); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	endpoint := backend.DefaultPaths().DispatchCode
	claims, err := f.signer.Verify(bearer, jwt.StagePassword)
	if err != nil || claims.Subject != normalizeEmail(req.Email) {
		return Status(endpoint, http.StatusUnauthorized, "Invalid or expired temporary token")
	}
	f.loginCodes[claims.Subject] = f.nextCodeLocked()
	return nil
}

func (f *Fake) CreateAccount(ctx context.Context, req backend.SignupRequest) (string, error) {
	if err := f.begin(ctx, MethodCreateAccount); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	email := normalizeEmail(req.Email)
	if _, exists := f.accounts[email]; exists {
		return "", Status(backend.DefaultPaths().Signup, http.StatusConflict, MsgEmailTaken)
	}
	f.accounts[email] = &Account{
		Name:     req.Name,
		Email:    email,
		Password: req.Password,
		Roles:    []string{"ROLE_USER"},
	}
	f.verifyTokens[uuid.NewString()] = email
	return MsgSignupOK, nil
}

func (f *Fake) VerifyEmail(ctx context.Context, token string) (string, error) {
	if err := f.begin(ctx, MethodVerifyEmail); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	email, ok := f.verifyTokens[token]
	if !ok {
		return "", Status(backend.DefaultPaths().VerifyEmail, http.StatusBadRequest, MsgInvalidVerifyToken)
	}
	delete(f.verifyTokens, token)
	if a, ok := f.accounts[email]; ok {
		a.Verified = true
	}
	return MsgVerified, nil
}

func (f *Fake) RequestReset(ctx context.Context, req backend.EmailRequest) (string, error) {
	if err := f.begin(ctx, MethodRequestReset); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	email := normalizeEmail(req.Email)
	if _, ok := f.accounts[email]; ok {
		f.resetCodes[email] = f.nextCodeLocked()
	}
	return MsgResetRequested, nil
}

func (f *Fake) ResetWithCode(ctx context.Context, req backend.ResetRequest) (string, error) {
	if err := f.begin(ctx, MethodResetWithCode); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	endpoint := backend.DefaultPaths().ResetWithCode
	email := normalizeEmail(req.Email)
	code, ok := f.resetCodes[email]
	if !ok || code != req.OTP {
		return "", Status(endpoint, http.StatusBadRequest, MsgInvalidOTP)
	}
	if req.NewPassword != req.ConfirmPassword {
		return "", Status(endpoint, http.StatusBadRequest, MsgPasswordsDiffer)
	}
	delete(f.resetCodes, email)
	if a, ok := f.accounts[email]; ok {
		a.Password = req.NewPassword
	}
	return MsgResetOK, nil
}

func (f *Fake) Logout(ctx context.Context, bearer string) error {
	if err := f.begin(ctx, MethodLogout); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.signer.Verify(bearer, jwt.StageComplete); err != nil {
		return Status(backend.DefaultPaths().Logout, http.StatusUnauthorized, "Invalid token")
	}
	f.revoked[bearer] = struct{}{}
	return nil
}

func (f *Fake) nextCodeLocked() string {
	f.codeSeq++
	return fmt.Sprintf("%06d", 100000+f.codeSeq*7919%900000)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func boolPtr(v bool) *bool { return &v }
