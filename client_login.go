package ledgerAuth

import (
	"context"
	"sync"

	"github.com/MrEthical07/ledgerAuth/internal/flows"
	"github.com/MrEthical07/ledgerAuth/internal/forms"
	"github.com/MrEthical07/ledgerAuth/roles"
	"github.com/MrEthical07/ledgerAuth/session"
)

// LoginStep is where a [LoginFlow] currently stands.
type LoginStep int

const (
	LoginAwaitingCredentials LoginStep = iota
	LoginAwaitingCode
	LoginAuthenticated
)

func (s LoginStep) String() string {
	switch s {
	case LoginAwaitingCredentials:
		return "awaiting_credentials"
	case LoginAwaitingCode:
		return "awaiting_code"
	case LoginAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginResult is returned by a successful [LoginFlow.Verify].
type LoginResult struct {
	Session session.Session
	// Landing is the route for the session's roles.
	Landing string
}

// LoginFlow drives the two-step login. Its step is derived from the
// session store, so a flow created after a restart resumes at the code
// step when a pending login was persisted.
//
// One step runs at a time; a second concurrent call fails with
// [ErrFlowBusy]. [LoginFlow.Abandon] invalidates any call in flight.
type LoginFlow struct {
	client *Client

	mu         sync.Mutex
	inFlight   bool
	generation uint64
}

// Login returns a login flow over the client's session store.
func (c *Client) Login() *LoginFlow {
	return &LoginFlow{client: c}
}

// Step reports the current step.
func (f *LoginFlow) Step() LoginStep {
	switch {
	case f.client.store.IsAuthenticated():
		return LoginAuthenticated
	case f.client.store.Pending() != nil:
		return LoginAwaitingCode
	default:
		return LoginAwaitingCredentials
	}
}

// PendingEmail returns the address the code was sent to, or "".
func (f *LoginFlow) PendingEmail() string {
	if p := f.client.store.Pending(); p != nil {
		return p.Email
	}
	return ""
}

// Submit checks email and password locally, exchanges them for a temporary
// token and moves the flow to [LoginAwaitingCode]. On any failure the
// pending login, if one existed, is discarded.
func (f *LoginFlow) Submit(ctx context.Context, email, password string) (session.Pending, error) {
	var pending session.Pending
	err := f.run(func(deps flows.LoginDeps) error {
		var err error
		pending, err = flows.RunSubmitCredentials(ctx, email, password, deps)
		return err
	})
	if err != nil {
		return session.Pending{}, err
	}
	return pending, nil
}

// Verify exchanges the emailed code for the final session. A rejected code
// leaves the pending login in place so the user can retry or resend.
func (f *LoginFlow) Verify(ctx context.Context, code string) (LoginResult, error) {
	var res flows.VerifyResult
	err := f.run(func(deps flows.LoginDeps) error {
		var err error
		res, err = flows.RunVerifyCode(ctx, code, deps)
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Session: res.Session, Landing: res.Landing}, nil
}

// Resend asks the backend to email a new code. It never changes session
// state.
func (f *LoginFlow) Resend(ctx context.Context) error {
	return f.run(func(deps flows.LoginDeps) error {
		return flows.RunResendCode(ctx, deps)
	})
}

// Abandon drops the pending login and invalidates any step in flight. A
// final session is left alone; use [Client.Logout] for that.
func (f *LoginFlow) Abandon(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.inFlight = false
	if err := f.client.store.ClearPending(ctx); err != nil {
		return f.client.fail(ErrSessionUnavailable, "", err)
	}
	return nil
}

func (f *LoginFlow) run(step func(flows.LoginDeps) error) error {
	gen, err := f.begin()
	if err != nil {
		return err
	}
	defer f.end(gen)

	stepErr := step(f.deps(gen))
	if !f.current(gen) {
		f.client.metrics.Inc(MetricFlowAbandoned)
		return f.client.fail(ErrFlowAbandoned, "", nil)
	}
	return stepErr
}

func (f *LoginFlow) begin() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		f.client.metrics.Inc(MetricFlowBusy)
		return 0, f.client.fail(ErrFlowBusy, "", nil)
	}
	f.inFlight = true
	return f.generation, nil
}

func (f *LoginFlow) end(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen == f.generation {
		f.inFlight = false
	}
}

func (f *LoginFlow) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gen == f.generation
}

// commit runs fn under the flow lock only while gen is current, so a step
// abandoned mid-call never writes session state.
func (f *LoginFlow) commit(gen uint64) func(func() error) error {
	return func(fn func() error) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.generation {
			return f.client.fail(ErrFlowAbandoned, "", nil)
		}
		return fn()
	}
}

func (f *LoginFlow) deps(gen uint64) flows.LoginDeps {
	c := f.client
	return flows.LoginDeps{
		Common:            c.common(f.commit(gen)),
		Store:             c.store,
		CodeDigits:        c.config.Policy.CodeDigits,
		UnverifiedMarkers: c.config.Backend.UnverifiedMarkers,
		ValidEmail:        forms.ValidEmail,
		ValidCode:         forms.ValidCode,
		InspectToken:      inspectToken,
		NormalizeRoles:    roles.NormalizeAll,
		Landing:           c.router.LandingFor,
		Metrics: flows.LoginMetrics{
			SubmitSuccess:      int(MetricLoginSubmitSuccess),
			SubmitFailure:      int(MetricLoginSubmitFailure),
			Unverified:         int(MetricLoginUnverified),
			VerifySuccess:      int(MetricOTPVerifySuccess),
			VerifyFailure:      int(MetricOTPVerifyFailure),
			Resend:             int(MetricOTPResend),
			ResendFailure:      int(MetricOTPResendFailure),
			ValidationRejected: int(MetricValidationRejected),
			TransportFailure:   int(MetricTransportFailure),
		},
		Events: flows.LoginEvents{
			Submit: EventLoginSubmit,
			Verify: EventLoginVerify,
			Resend: EventLoginResend,
		},
		Errors: flows.LoginErrors{
			ClientNotReady:       ErrClientNotReady,
			AlreadyAuthenticated: ErrAlreadyAuthenticated,
			NoPendingSession:     ErrNoPendingSession,
			InvalidEmail:         ErrInvalidEmail,
			PasswordRequired:     ErrPasswordRequired,
			InvalidCode:          ErrInvalidCode,
			InvalidCredentials:   ErrInvalidCredentials,
			UnverifiedEmail:      ErrUnverifiedEmail,
			OTPRejected:          ErrOTPRejected,
			ResendFailed:         ErrResendFailed,
			MalformedToken:       ErrMalformedToken,
			Transport:            ErrTransport,
			SessionUnavailable:   ErrSessionUnavailable,
			FlowAbandoned:        ErrFlowAbandoned,
		},
	}
}
