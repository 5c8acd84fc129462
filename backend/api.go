package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnreachable wraps network failures, timeouts, and cancelled requests.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformedResponse is returned when a success response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// AuthResponse is the payload of the credential and code-exchange endpoints.
//
// Verified is a pointer so that an absent flag can be told apart from an
// explicit false.
type AuthResponse struct {
	Token    string   `json:"token"`
	Roles    []string `json:"roles"`
	Verified *bool    `json:"verified"`
}

// IsVerified reports whether the response carries an explicit verified=true.
func (r AuthResponse) IsVerified() bool {
	return r.Verified != nil && *r.Verified
}

// Credentials is the login step 1 request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CodeRequest exchanges a one-time code for a final token.
type CodeRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// EmailRequest carries a single email address.
type EmailRequest struct {
	Email string `json:"email"`
}

// SignupRequest is the account creation request body.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetRequest finalizes a password reset with the emailed code.
type ResetRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// API is the backing REST contract consumed by the authentication flows.
//
// Methods returning a string return the server's confirmation text.
type API interface {
	SubmitCredentials(ctx context.Context, req Credentials) (AuthResponse, error)
	VerifyCode(ctx context.Context, req CodeRequest) (AuthResponse, error)
	DispatchCode(ctx context.Context, bearer string, req EmailRequest) error
	CreateAccount(ctx context.Context, req SignupRequest) (string, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	RequestReset(ctx context.Context, req EmailRequest) (string, error)
	ResetWithCode(ctx context.Context, req ResetRequest) (string, error)
	Logout(ctx context.Context, bearer string) error
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Detail)
}

// ServerFault reports whether the status is a 5xx or 429, which flows treat
// as transport failures rather than authentication outcomes.
func (e *StatusError) ServerFault() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// [StatusError].
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Detail returns the server-provided message carried by err, if any.
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

// IsTransport reports whether err should be treated as a retryable transport
// failure: unreachable backend, undecodable body, or server fault status.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.ServerFault()
	}
	return false
}

// ContainsMarker reports whether detail contains any marker, case-insensitively.
func ContainsMarker(detail string, markers []string) bool {
	lower := strings.ToLower(detail)
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
