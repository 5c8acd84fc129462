package ledgerAuth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/ledgerAuth/backend"
	internalaudit "github.com/MrEthical07/ledgerAuth/internal/audit"
	"github.com/MrEthical07/ledgerAuth/internal/flows"
	"github.com/MrEthical07/ledgerAuth/internal/forms"
	"github.com/MrEthical07/ledgerAuth/jwt"
	"github.com/MrEthical07/ledgerAuth/roles"
	"github.com/MrEthical07/ledgerAuth/session"
	"github.com/rs/zerolog"
)

// Client is the entry point for every authentication flow. It is safe for
// concurrent use; stateful flows are obtained with [Client.Login] and
// [Client.PasswordReset].
type Client struct {
	config  Config
	api     backend.API
	store   *session.Store
	router  roles.Router
	policy  forms.Policy
	logger  zerolog.Logger
	audit   *internalaudit.Dispatcher
	metrics *Metrics

	closeOnce sync.Once
	closeErr  error
}

// Close drains the audit queue and releases the session backend.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.audit.Close()
		c.closeErr = c.store.Close()
	})
	return c.closeErr
}

// Store exposes the session store, for collaborators such as
// [middleware.BearerTransport].
func (c *Client) Store() *session.Store {
	return c.store
}

// Current returns a copy of the final session, or nil.
func (c *Client) Current() *session.Session {
	return c.store.Current()
}

// IsAuthenticated reports whether a final session exists. A pending login
// does not count.
func (c *Client) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// Reload re-reads persisted session state, picking up logins and logouts
// made by other processes sharing the same backend.
func (c *Client) Reload(ctx context.Context) error {
	if err := c.store.Load(ctx); err != nil {
		return c.fail(ErrSessionUnavailable, "", err)
	}
	return nil
}

// LandingFor returns the route a user with roles lands on.
func (c *Client) LandingFor(roleNames []string) string {
	return c.router.LandingFor(roleNames)
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// MetricsSnapshot returns a copy of the client counters. It is empty when
// metrics are disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped because the
// queue was full.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Logout revokes the final token with the backend when possible and always
// clears local session state. Only a local storage failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	return flows.RunLogout(ctx, flows.LogoutDeps{
		Common: c.common(nil),
		Store:  c.store,
		Metrics: flows.LogoutMetrics{
			Logout:         int(MetricLogout),
			BackendFailure: int(MetricLogoutBackendFailure),
		},
		Events: flows.LogoutEvents{Logout: EventLogout},
		Errors: flows.LogoutErrors{
			ClientNotReady:     ErrClientNotReady,
			SessionUnavailable: ErrSessionUnavailable,
		},
	})
}

func (c *Client) common(commit func(func() error) error) flows.Common {
	return flows.Common{
		API:       c.api,
		Fail:      c.fail,
		Commit:    commit,
		MetricInc: func(id int) { c.metrics.Inc(MetricID(id)) },
		EmitAudit: c.emitAudit,
		Warn:      c.warn,
	}
}

// fail turns a flow outcome into a *FlowError with its category and the
// route the user should be offered next.
func (c *Client) fail(reason error, detail string, cause error) error {
	category := CategoryOf(reason)
	if reason == ErrResendFailed && !isRejection(cause) {
		category = ErrTransport
	}

	next := ""
	switch reason {
	case ErrUnverifiedEmail:
		next = c.config.Routes.Signup
	case ErrMalformedToken, ErrNoPendingSession, ErrAccountExists:
		next = c.config.Routes.Login
	case ErrAlreadyAuthenticated:
		if cur := c.store.Current(); cur != nil {
			next = c.router.LandingFor(cur.Roles)
		}
	}

	if category == ErrTransport && cause != nil {
		c.logger.Warn().Err(cause).Str("reason", reason.Error()).Msg("backend call failed")
	}
	return newFlowError(reason, category, detail, next, cause)
}

func (c *Client) warn(ctx context.Context, msg string, err error) {
	ev := c.logger.Warn().Err(err)
	if id := RequestIDFromContext(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	ev.Msg(msg)
}

func isRejection(err error) bool {
	status := backend.StatusCode(err)
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

func inspectToken(token string) error {
	_, err := jwt.Inspect(token)
	return err
}

func (c *Client) checkPassword(password string) error {
	err := c.policy.Check(password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, forms.ErrTooShort):
		return ErrPasswordTooShort
	case errors.Is(err, forms.ErrCharacterClass):
		return ErrPasswordCharacterClass
	default:
		return ErrPasswordPolicy
	}
}

// instrumentedAPI records backend call latency.
type instrumentedAPI struct {
	next    backend.API
	metrics *Metrics
}

func (a *instrumentedAPI) observe(start time.Time) {
	a.metrics.Observe(MetricBackendLatency, time.Since(start))
}

func (a *instrumentedAPI) SubmitCredentials(ctx context.Context, req backend.Credentials) (backend.AuthResponse, error) {
	defer a.observe(time.Now())
	return a.next.SubmitCredentials(ctx, req)
}

func (a *instrumentedAPI) VerifyCode(ctx context.Context, req backend.CodeRequest) (backend.AuthResponse, error) {
	defer a.observe(time.Now())
	return a.next.VerifyCode(ctx, req)
}

func (a *instrumentedAPI) DispatchCode(ctx context.Context, bearer string, req backend.EmailRequest) error {
	defer a.observe(time.Now())
	return a.next.DispatchCode(ctx, bearer, req)
}

func (a *instrumentedAPI) CreateAccount(ctx context.Context, req backend.SignupRequest) (string, error) {
	defer a.observe(time.Now())
	return a.next.CreateAccount(ctx, req)
}

func (a *instrumentedAPI) VerifyEmail(ctx context.Context, token string) (string, error) {
	defer a.observe(time.Now())
	return a.next.VerifyEmail(ctx, token)
}

func (a *instrumentedAPI) RequestReset(ctx context.Context, req backend.EmailRequest) (string, error) {
	defer a.observe(time.Now())
	return a.next.RequestReset(ctx, req)
}

func (a *instrumentedAPI) ResetWithCode(ctx context.Context, req backend.ResetRequest) (string, error) {
	defer a.observe(time.Now())
	return a.next.ResetWithCode(ctx, req)
}

func (a *instrumentedAPI) Logout(ctx context.Context, bearer string) error {
	defer a.observe(time.Now())
	return a.next.Logout(ctx, bearer)
}
