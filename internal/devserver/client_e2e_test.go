package devserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
	"github.com/MrEthical07/ledgerAuth/internal/devserver"
	"github.com/MrEthical07/ledgerAuth/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func startBackend(t *testing.T) (*devserver.Server, *ledgerAuth.Client, string) {
	t.Helper()
	return startBackendWithDigits(t, 6)
}

// startBackendWithDigits runs client and server with the same code length.
func startBackendWithDigits(t *testing.T, digits int) (*devserver.Server, *ledgerAuth.Client, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := devserver.DefaultConfig()
	cfg.CodeDigits = digits
	cfg.Secret = []byte("devserver-e2e-secret-0123456789abcdef")
	cfg.BcryptCost = bcrypt.MinCost
	cfg.Seed = []devserver.SeedAccount{
		{Name: "Bob", Email: "bob@example.com", Password: "hunter22pass", Verified: true},
		{Name: "Root", Email: "root@example.com", Password: "toor99admin", Verified: true, Roles: []string{"ROLE_ADMIN"}},
	}
	dev, err := devserver.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	clientCfg := ledgerAuth.DefaultConfig()
	clientCfg.Backend.BaseURL = ts.URL
	clientCfg.Backend.RequestsPerSecond = 0
	clientCfg.Backend.Timeout = 5 * time.Second
	clientCfg.Policy.CodeDigits = digits
	client, err := ledgerAuth.New().
		WithConfig(clientCfg).
		WithLogger(zerolog.Nop()).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return dev, client, ts.URL
}

func TestClientLoginOverHTTP(t *testing.T) {
	dev, client, baseURL := startBackend(t)
	ctx := context.Background()

	flow := client.Login()
	_, err := flow.Submit(ctx, "bob@example.com", "hunter22pass")
	require.NoError(t, err)
	require.False(t, client.IsAuthenticated())

	first, _ := dev.Outbox().Last("bob@example.com", devserver.MailLoginCode)
	if first.Code != "000000" {
		_, err = flow.Verify(ctx, "000000")
		require.True(t, errors.Is(err, ledgerAuth.ErrOTPRejected), "got %v", err)
		require.NotNil(t, client.Store().Pending())
	}
	require.NoError(t, flow.Resend(ctx))
	second, _ := dev.Outbox().Last("bob@example.com", devserver.MailLoginCode)
	require.NotEqual(t, first.Code, second.Code)

	result, err := flow.Verify(ctx, second.Code)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", result.Landing)
	require.True(t, client.IsAuthenticated())
	assert.Equal(t, []string{"ROLE_USER"}, client.Current().Roles)

	api := middleware.Client(client.Store(), true)
	resp, err := api.Get(baseURL + "/api/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token := client.Current().Token
	require.NoError(t, client.Logout(ctx))
	assert.False(t, client.IsAuthenticated())

	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "logout must revoke the token server side")
}

func TestClientAdminLanding(t *testing.T) {
	dev, client, _ := startBackend(t)
	ctx := context.Background()

	flow := client.Login()
	_, err := flow.Submit(ctx, "root@example.com", "toor99admin")
	require.NoError(t, err)
	mail, _ := dev.Outbox().Last("root@example.com", devserver.MailLoginCode)
	result, err := flow.Verify(ctx, mail.Code)
	require.NoError(t, err)
	assert.Equal(t, "/admin-dashboard", result.Landing)
}

func TestClientSignupVerifyLogin(t *testing.T) {
	dev, client, _ := startBackend(t)
	ctx := context.Background()

	pending, err := client.Signup(ctx, ledgerAuth.SignupForm{
		Name: "Carol", Email: "carol@example.com", Password: "carol123pass", ConfirmPassword: "carol123pass",
	})
	require.NoError(t, err)
	assert.Equal(t, devserver.MsgSignupOK, pending.Message)

	_, err = client.Login().Submit(ctx, "carol@example.com", "carol123pass")
	require.True(t, errors.Is(err, ledgerAuth.ErrUnverifiedEmail), "got %v", err)
	assert.Nil(t, client.Store().Pending())

	_, err = client.Signup(ctx, ledgerAuth.SignupForm{
		Name: "Carol", Email: "carol@example.com", Password: "carol123pass", ConfirmPassword: "carol123pass",
	})
	require.True(t, errors.Is(err, ledgerAuth.ErrAccountExists), "got %v", err)

	mail, ok := dev.Outbox().Last("carol@example.com", devserver.MailVerification)
	require.True(t, ok)
	verified, err := client.VerifyEmailLink(ctx, mail.Link)
	require.NoError(t, err)
	assert.Equal(t, "/login", verified.Next)

	flow := client.Login()
	_, err = flow.Submit(ctx, "carol@example.com", "carol123pass")
	require.NoError(t, err)
	code, _ := dev.Outbox().Last("carol@example.com", devserver.MailLoginCode)
	_, err = flow.Verify(ctx, code.Code)
	require.NoError(t, err)
	assert.True(t, client.IsAuthenticated())
}

func TestClientPasswordReset(t *testing.T) {
	dev, client, _ := startBackend(t)
	ctx := context.Background()

	reset := client.PasswordReset()
	_, err := reset.RequestCode(ctx, "bob@example.com")
	require.NoError(t, err)
	mail, ok := dev.Outbox().Last("bob@example.com", devserver.MailResetCode)
	require.True(t, ok)

	require.NoError(t, reset.EnterCode(ctx, mail.Code))
	result, err := reset.Submit(ctx, "brandnew42", "brandnew42")
	require.NoError(t, err)
	assert.Equal(t, "/login", result.Next)

	_, err = client.Login().Submit(ctx, "bob@example.com", "hunter22pass")
	require.True(t, errors.Is(err, ledgerAuth.ErrInvalidCredentials), "got %v", err)
	_, err = client.Login().Submit(ctx, "bob@example.com", "brandnew42")
	require.NoError(t, err)
}

func TestClientLoginWithLongerCodes(t *testing.T) {
	dev, client, _ := startBackendWithDigits(t, 8)
	ctx := context.Background()

	flow := client.Login()
	_, err := flow.Submit(ctx, "bob@example.com", "hunter22pass")
	require.NoError(t, err)
	mail, ok := dev.Outbox().Last("bob@example.com", devserver.MailLoginCode)
	require.True(t, ok)
	require.Len(t, mail.Code, 8)

	_, err = flow.Verify(ctx, mail.Code[:6])
	require.True(t, errors.Is(err, ledgerAuth.ErrInvalidCode), "got %v", err)

	_, err = flow.Verify(ctx, mail.Code)
	require.NoError(t, err)
	assert.True(t, client.IsAuthenticated())
}
