package ledgerAuth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/ledgerAuth/internal/flows"
	"github.com/MrEthical07/ledgerAuth/internal/forms"
)

// SignupForm is the account creation form.
type SignupForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// PendingVerification is returned once an account exists but its email is
// not yet confirmed.
type PendingVerification struct {
	Email   string
	Message string
	// Next is the "check your email" route.
	Next          string
	RedirectAfter time.Duration
}

// Signup validates the form locally in field order and creates the account.
// It never touches session state.
func (c *Client) Signup(ctx context.Context, form SignupForm) (PendingVerification, error) {
	msg, err := flows.RunSignup(ctx, flows.SignupInput{
		Name:            form.Name,
		Email:           form.Email,
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
	}, flows.SignupDeps{
		Common:        c.common(nil),
		ValidEmail:    forms.ValidEmail,
		CheckPassword: c.checkPassword,
		Metrics: flows.SignupMetrics{
			Success:            int(MetricSignupSuccess),
			Failure:            int(MetricSignupFailure),
			Duplicate:          int(MetricSignupDuplicate),
			ValidationRejected: int(MetricValidationRejected),
			TransportFailure:   int(MetricTransportFailure),
		},
		Events: flows.SignupEvents{Signup: EventSignup},
		Errors: flows.SignupErrors{
			ClientNotReady:   ErrClientNotReady,
			NameRequired:     ErrNameRequired,
			InvalidEmail:     ErrInvalidEmail,
			PasswordMismatch: ErrPasswordMismatch,
			AccountExists:    ErrAccountExists,
			SignupFailed:     ErrSignupFailed,
			Transport:        ErrTransport,
		},
	})
	if err != nil {
		return PendingVerification{}, err
	}
	return PendingVerification{
		Email:         strings.TrimSpace(form.Email),
		Message:       msg,
		Next:          c.config.Routes.CheckEmail,
		RedirectAfter: c.config.Routes.SignupRedirectDelay,
	}, nil
}
