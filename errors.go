package ledgerAuth

import (
	"errors"
	"fmt"
)

// Categories. Every [FlowError] matches exactly one of these.
var (
	// ErrValidation marks input rejected locally before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication marks a rejection by the backing service.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConflict marks a request that conflicts with existing server state.
	ErrConflict = errors.New("conflict")
	// ErrTransport marks an unreachable backend, a timeout, a server fault,
	// or a local persistence failure. Retrying later may succeed.
	ErrTransport = errors.New("backend unavailable")
	// ErrProtocol marks a success response the client cannot trust.
	ErrProtocol = errors.New("protocol violation")
	// ErrFlowState marks a call that does not fit the flow's current step.
	ErrFlowState = errors.New("invalid flow state")
)

var (
	// ErrClientNotReady is returned when a client was not built with its dependencies.
	ErrClientNotReady = errors.New("client not ready")

	// ErrInvalidEmail is returned when an address does not match the accepted grammar.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordRequired is returned when the password field is empty.
	ErrPasswordRequired = errors.New("password required")
	// ErrNameRequired is returned when the signup name is empty.
	ErrNameRequired = errors.New("name required")
	// ErrPasswordPolicy is wrapped by every password policy reason.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordMismatch is returned when a password and its confirmation differ.
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrPasswordPolicy)
	// ErrPasswordTooShort is returned when a password is below the minimum length.
	ErrPasswordTooShort = fmt.Errorf("%w: too short", ErrPasswordPolicy)
	// ErrPasswordCharacterClass is returned when a password lacks a letter or a digit.
	ErrPasswordCharacterClass = fmt.Errorf("%w: needs a letter and a digit", ErrPasswordPolicy)
	// ErrInvalidCode is returned when a one-time code is not the expected number of digits.
	ErrInvalidCode = errors.New("invalid code format")
	// ErrInvalidLink is returned when a verification link carries no token.
	ErrInvalidLink = errors.New("invalid verification link")

	// ErrInvalidCredentials is returned when the backend rejects email and password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnverifiedEmail is returned when the account's email is not yet confirmed.
	ErrUnverifiedEmail = errors.New("email not verified")
	// ErrOTPRejected is returned when the backend does not confirm a one-time code.
	ErrOTPRejected = errors.New("code rejected")
	// ErrResendFailed is returned when a new code could not be dispatched.
	ErrResendFailed = errors.New("code resend failed")
	// ErrVerificationFailed is returned when an email confirmation link is rejected.
	ErrVerificationFailed = errors.New("email verification failed")
	// ErrResetFailed is returned when a reset request or confirmation is rejected.
	ErrResetFailed = errors.New("password reset failed")
	// ErrSignupFailed is returned when account creation is rejected.
	ErrSignupFailed = errors.New("signup failed")
	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")

	// ErrMalformedToken is returned when a success response lacks a
	// signed-token-shaped token.
	ErrMalformedToken = errors.New("malformed token in response")
	// ErrSessionUnavailable is returned when session state cannot be persisted.
	ErrSessionUnavailable = errors.New("session storage unavailable")

	// ErrAlreadyAuthenticated is returned when a final session already exists.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrNoPendingSession is returned when a code step runs before the password step.
	ErrNoPendingSession = errors.New("no pending session")
	// ErrFlowBusy is returned while another step of the same flow is in flight.
	ErrFlowBusy = errors.New("flow busy")
	// ErrFlowAbandoned is returned when a flow was abandoned while a step was in flight.
	ErrFlowAbandoned = errors.New("flow abandoned")
	// ErrResetStep is returned when a reset step is called out of order.
	ErrResetStep = errors.New("password reset step out of order")
)

var reasonCategory = map[error]error{
	ErrInvalidEmail:           ErrValidation,
	ErrPasswordRequired:       ErrValidation,
	ErrNameRequired:           ErrValidation,
	ErrPasswordMismatch:       ErrValidation,
	ErrPasswordTooShort:       ErrValidation,
	ErrPasswordCharacterClass: ErrValidation,
	ErrInvalidCode:            ErrValidation,
	ErrInvalidLink:            ErrValidation,

	ErrInvalidCredentials: ErrAuthentication,
	ErrUnverifiedEmail:    ErrAuthentication,
	ErrOTPRejected:        ErrAuthentication,
	ErrResendFailed:       ErrAuthentication,
	ErrVerificationFailed: ErrAuthentication,
	ErrResetFailed:        ErrAuthentication,
	ErrSignupFailed:       ErrAuthentication,

	ErrAccountExists: ErrConflict,

	ErrTransport:          ErrTransport,
	ErrSessionUnavailable: ErrTransport,

	ErrMalformedToken: ErrProtocol,

	ErrAlreadyAuthenticated: ErrFlowState,
	ErrNoPendingSession:     ErrFlowState,
	ErrFlowBusy:             ErrFlowState,
	ErrFlowAbandoned:        ErrFlowState,
	ErrResetStep:            ErrFlowState,
	ErrClientNotReady:       ErrFlowState,
}

// FlowError is the error type returned by every flow step.
//
// errors.Is matches both Reason and Category. Cause holds the underlying
// transport or storage error for logging and is not matched.
type FlowError struct {
	Category error
	Reason   error
	// Detail is the server-provided message, if any.
	Detail string
	// Next names the route the user should be offered, if any.
	Next  string
	Cause error
}

func (e *FlowError) Error() string {
	if e == nil || e.Reason == nil {
		return "ledgerauth: unknown error"
	}
	if e.Detail != "" {
		return e.Reason.Error() + ": " + e.Detail
	}
	return e.Reason.Error()
}

func (e *FlowError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Reason != nil {
		out = append(out, e.Reason)
	}
	if e.Category != nil && e.Category != e.Reason {
		out = append(out, e.Category)
	}
	return out
}

func newFlowError(reason, category error, detail, next string, cause error) *FlowError {
	if category == nil {
		category = CategoryOf(reason)
	}
	return &FlowError{
		Category: category,
		Reason:   reason,
		Detail:   detail,
		Next:     next,
		Cause:    cause,
	}
}

// CategoryOf returns the category sentinel for a reason sentinel or a
// [FlowError], or nil when err is neither.
func CategoryOf(err error) error {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Category
	}
	if c, ok := reasonCategory[err]; ok {
		return c
	}
	return nil
}

var defaultMessages = map[error]string{
	ErrClientNotReady:         "The client is not configured.",
	ErrInvalidEmail:           "Please enter a valid email address.",
	ErrPasswordRequired:       "Please enter your password.",
	ErrNameRequired:           "Please enter your name.",
	ErrPasswordMismatch:       "Passwords do not match.",
	ErrPasswordTooShort:       "Password is too short.",
	ErrPasswordCharacterClass: "Password must contain at least one letter and one number.",
	ErrInvalidCode:            "Please enter the 6-digit code from your email.",
	ErrInvalidLink:            "This verification link is invalid.",
	ErrInvalidCredentials:     "Invalid email or password.",
	ErrUnverifiedEmail:        "Please verify your email before logging in.",
	ErrOTPRejected:            "Invalid or expired code.",
	ErrResendFailed:           "Could not send a new code. Please try again.",
	ErrVerificationFailed:     "Email verification failed.",
	ErrResetFailed:            "Password reset failed.",
	ErrSignupFailed:           "Signup failed.",
	ErrAccountExists:          "An account with this email already exists.",
	ErrTransport:              "Could not reach the server. Please try again.",
	ErrMalformedToken:         "The server sent an unexpected response. Please sign in again.",
	ErrSessionUnavailable:     "Could not save your session. Please try again.",
	ErrAlreadyAuthenticated:   "You are already signed in.",
	ErrNoPendingSession:       "Please sign in with your email and password first.",
	ErrFlowBusy:               "Please wait for the current request to finish.",
	ErrFlowAbandoned:          "This request was cancelled.",
	ErrResetStep:              "Please complete the previous step first.",
}

// serverWorded lists reasons for which the backend's own message is shown.
var serverWorded = map[error]bool{
	ErrInvalidCredentials: true,
	ErrUnverifiedEmail:    true,
	ErrOTPRejected:        true,
	ErrResendFailed:       true,
	ErrVerificationFailed: true,
	ErrResetFailed:        true,
	ErrSignupFailed:       true,
	ErrAccountExists:      true,
}

// UserMessage renders err as a single line suitable for showing to the user.
// It never includes the raw transport cause.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		if fe.Detail != "" && serverWorded[fe.Reason] {
			return fe.Detail
		}
		if msg, ok := defaultMessages[fe.Reason]; ok {
			return msg
		}
	}
	for reason, msg := range defaultMessages {
		if errors.Is(err, reason) {
			return msg
		}
	}
	return "Something went wrong. Please try again."
}
