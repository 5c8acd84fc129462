package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 10

// Paths holds the endpoint paths of the backing service.
type Paths struct {
	Login         string
	VerifyCode    string
	DispatchCode  string
	Signup        string
	VerifyEmail   string
	RequestReset  string
	ResetWithCode string
	Logout        string
}

// DefaultPaths returns the endpoint layout of the expense tracker service.
func DefaultPaths() Paths {
	return Paths{
		Login:         "/api/auth/login",
		VerifyCode:    "/api/auth/verify-otp",
		DispatchCode:  "/api/auth/send-otp",
		Signup:        "/api/auth/signup",
		VerifyEmail:   "/api/auth/verify-email",
		RequestReset:  "/api/auth/forgot-password",
		ResetWithCode: "/api/auth/reset-password-with-otp",
		Logout:        "/api/auth/logout",
	}
}

// Config configures [HTTPClient].
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Paths     Paths

	// RequestsPerSecond enables an outbound limiter when > 0.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the underlying client; Timeout is ignored when set.
	HTTPClient *http.Client
	// RequestID returns the correlation ID for ctx; a random UUID is used
	// when it is nil or returns "".
	RequestID func(context.Context) string
}

// HTTPClient implements [API] over JSON/HTTP.
type HTTPClient struct {
	base      *url.URL
	http      *http.Client
	paths     Paths
	userAgent string
	limiter   *rate.Limiter
	requestID func(context.Context) string
}

// NewHTTPClient validates cfg and returns a ready client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend base URL required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("backend base URL must be http or https")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, errors.New("backend requests per second must be >= 0")
	}

	paths := cfg.Paths
	if paths == (Paths{}) {
		paths = DefaultPaths()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &HTTPClient{
		base:      base,
		http:      hc,
		paths:     paths,
		userAgent: cfg.UserAgent,
		requestID: cfg.RequestID,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

func (c *HTTPClient) SubmitCredentials(ctx context.Context, req Credentials) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, c.paths.Login, nil, req, "", &out)
	return out, err
}

func (c *HTTPClient) VerifyCode(ctx context.Context, req CodeRequest) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, c.paths.VerifyCode, nil, req, "", &out)
	return out, err
}

func (c *HTTPClient) DispatchCode(ctx context.Context, bearer string, req EmailRequest) error {
	return c.do(ctx, http.MethodPost, c.paths.DispatchCode, nil, req, bearer, nil)
}

func (c *HTTPClient) CreateAccount(ctx context.Context, req SignupRequest) (string, error) {
	var out string
	err := c.do(ctx, http.MethodPost, c.paths.Signup, nil, req, "", &out)
	return out, err
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, token string) (string, error) {
	var out string
	err := c.do(ctx, http.MethodGet, c.paths.VerifyEmail, url.Values{"token": {token}}, nil, "", &out)
	return out, err
}

func (c *HTTPClient) RequestReset(ctx context.Context, req EmailRequest) (string, error) {
	var out string
	err := c.do(ctx, http.MethodPost, c.paths.RequestReset, nil, req, "", &out)
	return out, err
}

func (c *HTTPClient) ResetWithCode(ctx context.Context, req ResetRequest) (string, error) {
	var out string
	err := c.do(ctx, http.MethodPost, c.paths.ResetWithCode, nil, req, "", &out)
	return out, err
}

func (c *HTTPClient) Logout(ctx context.Context, bearer string) error {
	return c.do(ctx, http.MethodPost, c.paths.Logout, nil, nil, bearer, nil)
}

// do sends one request. out may be nil, *string (text body), or a JSON target.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
	}

	target := *c.base
	target.Path = c.base.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("X-Request-ID", c.nextRequestID(ctx))
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Endpoint: path,
			Status:   resp.StatusCode,
			Detail:   detailFromBody(raw),
		}
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *string:
		*dst = detailFromBody(raw)
		return nil
	default:
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	}
}

func (c *HTTPClient) nextRequestID(ctx context.Context) string {
	if c.requestID != nil {
		if id := c.requestID(ctx); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// detailFromBody reduces a text or JSON body to a single message line.
func detailFromBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return strings.TrimSpace(s)
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			for _, key := range []string{"message", "error", "detail"} {
				if s, ok := obj[key].(string); ok && s != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return string(trimmed)
}
