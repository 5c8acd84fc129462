package ledgerAuth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/ledgerAuth/internal/flows"
	"github.com/MrEthical07/ledgerAuth/internal/forms"
)

// ResetStep is where a [PasswordResetFlow] currently stands.
type ResetStep int

const (
	ResetAwaitingEmail ResetStep = iota
	ResetAwaitingCode
	ResetAwaitingNewPassword
	ResetComplete
)

func (s ResetStep) String() string {
	switch s {
	case ResetAwaitingEmail:
		return "awaiting_email"
	case ResetAwaitingCode:
		return "awaiting_code"
	case ResetAwaitingNewPassword:
		return "awaiting_new_password"
	case ResetComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ResetResult is returned when the password was changed.
type ResetResult struct {
	Message string
	// Next is the login route.
	Next          string
	RedirectAfter time.Duration
}

// PasswordResetFlow drives the three-step reset: request a code, enter it,
// choose a new password. State lives only in memory and never touches the
// session store. Steps cannot be skipped.
type PasswordResetFlow struct {
	client *Client

	mu         sync.Mutex
	step       ResetStep
	email      string
	code       string
	inFlight   bool
	generation uint64
}

// PasswordReset returns a new reset flow at [ResetAwaitingEmail].
func (c *Client) PasswordReset() *PasswordResetFlow {
	return &PasswordResetFlow{client: c}
}

// Step reports the current step. Unlike login, reset progress lives only in
// the flow and is not persisted.
func (f *PasswordResetFlow) Step() ResetStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Email returns the address entered at the first step.
func (f *PasswordResetFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Code returns the code entered at the second step, if any.
func (f *PasswordResetFlow) Code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

// RequestCode asks the backend to email a reset code. The outcome is the
// same whether or not an account exists for email.
func (f *PasswordResetFlow) RequestCode(ctx context.Context, email string) (string, error) {
	gen, err := f.begin(ResetAwaitingEmail)
	if err != nil {
		return "", err
	}
	defer f.end(gen)

	email = strings.TrimSpace(email)
	msg, err := flows.RunRequestPasswordReset(ctx, email, f.deps())
	return msg, f.finish(gen, err, func() {
		f.email = email
		f.code = ""
		f.step = ResetAwaitingCode
	})
}

// EnterCode shape-checks the emailed code. It makes no network call; the
// code is verified together with the new password.
func (f *PasswordResetFlow) EnterCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return f.busy()
	}
	if f.step != ResetAwaitingCode {
		return f.client.fail(ErrResetStep, "", nil)
	}

	code = strings.TrimSpace(code)
	if err := flows.RunCheckResetCode(ctx, f.email, code, f.deps()); err != nil {
		return err
	}
	f.code = code
	f.step = ResetAwaitingNewPassword
	return nil
}

// Submit checks the new password locally and sends email, code and password
// in one call. On failure the flow stays at [ResetAwaitingNewPassword]; use
// [PasswordResetFlow.Back] to re-enter the code.
func (f *PasswordResetFlow) Submit(ctx context.Context, newPassword, confirmPassword string) (ResetResult, error) {
	gen, err := f.begin(ResetAwaitingNewPassword)
	if err != nil {
		return ResetResult{}, err
	}
	defer f.end(gen)

	f.mu.Lock()
	in := flows.ResetInput{
		Email:           f.email,
		Code:            f.code,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}
	f.mu.Unlock()

	msg, err := flows.RunConfirmPasswordReset(ctx, in, f.deps())
	if err := f.finish(gen, err, func() {
		f.email = ""
		f.code = ""
		f.step = ResetComplete
	}); err != nil {
		return ResetResult{}, err
	}
	return ResetResult{
		Message:       msg,
		Next:          f.client.config.Routes.Login,
		RedirectAfter: f.client.config.Routes.ResetRedirectDelay,
	}, nil
}

// Back returns to the previous step. From the password step the entered
// code is kept; from the code step the code is cleared and the email kept.
func (f *PasswordResetFlow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case ResetAwaitingNewPassword:
		f.step = ResetAwaitingCode
	case ResetAwaitingCode:
		f.code = ""
		f.step = ResetAwaitingEmail
	default:
		return f.client.fail(ErrResetStep, "", nil)
	}
	f.generation++
	f.inFlight = false
	return nil
}

// Abandon clears everything and returns to [ResetAwaitingEmail].
func (f *PasswordResetFlow) Abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.inFlight = false
	f.step = ResetAwaitingEmail
	f.email = ""
	f.code = ""
}

func (f *PasswordResetFlow) begin(want ResetStep) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return 0, f.busy()
	}
	if f.step != want {
		return 0, f.client.fail(ErrResetStep, "", nil)
	}
	f.inFlight = true
	return f.generation, nil
}

func (f *PasswordResetFlow) end(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen == f.generation {
		f.inFlight = false
	}
}

// finish applies advance when the step succeeded and gen is still current.
func (f *PasswordResetFlow) finish(gen uint64, stepErr error, advance func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		f.client.metrics.Inc(MetricFlowAbandoned)
		return f.client.fail(ErrFlowAbandoned, "", nil)
	}
	if stepErr != nil {
		return stepErr
	}
	advance()
	return nil
}

// busy must be called with f.mu held.
func (f *PasswordResetFlow) busy() error {
	f.client.metrics.Inc(MetricFlowBusy)
	return f.client.fail(ErrFlowBusy, "", nil)
}

func (f *PasswordResetFlow) deps() flows.PasswordResetDeps {
	c := f.client
	return flows.PasswordResetDeps{
		Common:            c.common(nil),
		CodeDigits:        c.config.Policy.CodeDigits,
		MinPasswordLength: c.config.Policy.MinPasswordLength,
		ValidEmail:        forms.ValidEmail,
		ValidCode:         forms.ValidCode,
		Metrics: flows.PasswordResetMetrics{
			Request:            int(MetricPasswordResetRequest),
			RequestFailure:     int(MetricPasswordResetRequestFailure),
			ConfirmSuccess:     int(MetricPasswordResetConfirmSuccess),
			ConfirmFailure:     int(MetricPasswordResetConfirmFailure),
			ValidationRejected: int(MetricValidationRejected),
			TransportFailure:   int(MetricTransportFailure),
		},
		Events: flows.PasswordResetEvents{
			Request: EventResetRequest,
			Code:    EventResetCode,
			Confirm: EventResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			ClientNotReady:   ErrClientNotReady,
			InvalidEmail:     ErrInvalidEmail,
			InvalidCode:      ErrInvalidCode,
			PasswordMismatch: ErrPasswordMismatch,
			PasswordTooShort: ErrPasswordTooShort,
			ResetFailed:      ErrResetFailed,
			Transport:        ErrTransport,
		},
	}
}
