package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/ledgerAuth/internal/forms"
	"github.com/MrEthical07/ledgerAuth/jwt"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// SeedAccount is an account created at startup.
type SeedAccount struct {
	Name     string
	Email    string
	Password string
	Verified bool
	Roles    []string
}

// Config configures [Server].
type Config struct {
	// Secret signs tokens; at least 32 bytes.
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration

	LoginCodeTTL time.Duration
	ResetCodeTTL time.Duration
	// CodeDigits is the length of login and reset codes, 4 to 10. It must
	// match the client's Policy.CodeDigits.
	CodeDigits int

	// PublicURL is the base of emailed verification links.
	PublicURL string

	Policy     forms.Policy
	BcryptCost int

	Logger zerolog.Logger
	Now    func() time.Time
	Seed   []SeedAccount
}

// DefaultConfig returns development settings. Secret is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:       "ledgerauth-dev",
		TokenTTL:     time.Hour,
		LoginCodeTTL: 5 * time.Minute,
		ResetCodeTTL: 15 * time.Minute,
		CodeDigits:   forms.DefaultCodeDigits,
		PublicURL:    "http://localhost:5173",
		Policy:       forms.DefaultPolicy(),
		BcryptCost:   bcrypt.DefaultCost,
		Logger:       zerolog.Nop(),
	}
}

// Server serves the authentication endpoints under /api/auth.
type Server struct {
	config   Config
	signer   *jwt.Signer
	accounts *accountStore
	outbox   *Outbox
	engine   *gin.Engine
}

var bindingOnce sync.Once

// registerBindings adds the shared form rules to gin's validator.
func registerBindings() {
	bindingOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			forms.RegisterCustomValidations(v)
		}
	})
}

// New validates cfg, creates seed accounts, and builds the routes.
func New(cfg Config) (*Server, error) {
	defaults := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.LoginCodeTTL <= 0 {
		cfg.LoginCodeTTL = defaults.LoginCodeTTL
	}
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = defaults.ResetCodeTTL
	}
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = defaults.CodeDigits
	}
	if cfg.CodeDigits < 4 || cfg.CodeDigits > 10 {
		return nil, errors.New("devserver: code digits must be between 4 and 10")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, errors.New("devserver: bcrypt cost out of range")
	}
	if cfg.Policy == (forms.Policy{}) {
		cfg.Policy = defaults.Policy
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	signer, err := jwt.NewSigner(jwt.SignerConfig{Secret: cfg.Secret, TTL: cfg.TokenTTL, Issuer: cfg.Issuer})
	if err != nil {
		return nil, err
	}

	registerBindings()
	s := &Server{
		config:   cfg,
		signer:   signer,
		accounts: newAccountStore(cfg.BcryptCost, cfg.CodeDigits, cfg.Now),
		outbox:   NewOutbox(cfg.Logger),
	}
	for _, seed := range cfg.Seed {
		if err := s.AddAccount(seed); err != nil {
			return nil, err
		}
	}
	s.engine = s.routes()
	return s, nil
}

// AddAccount creates an account directly. Unverified accounts get a
// verification mail as if they had signed up.
func (s *Server) AddAccount(a SeedAccount) error {
	if !forms.ValidEmail(a.Email) {
		return errors.New("devserver: invalid seed email " + a.Email)
	}
	token, err := s.accounts.create(a.Name, a.Email, a.Password, a.Roles, a.Verified)
	if err != nil {
		return err
	}
	if token != "" {
		s.sendVerification(a.Email, token)
	}
	return nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Outbox returns the captured mail.
func (s *Server) Outbox() *Outbox { return s.outbox }

// VerificationLink returns the outstanding verification link for email.
func (s *Server) VerificationLink(email string) string {
	token := s.accounts.verificationToken(email)
	if token == "" {
		return ""
	}
	return s.config.PublicURL + "/verify-email?token=" + token
}

// Serve runs the server on l until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.config.Logger))

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/verify-otp", s.verifyOTP)
		auth.POST("/send-otp", s.sendOTP)
		auth.POST("/signup", s.signup)
		auth.GET("/verify-email", s.verifyEmail)
		auth.POST("/forgot-password", s.forgotPassword)
		auth.POST("/reset-password-with-otp", s.resetWithOTP)
		auth.POST("/logout", s.logout)
	}

	api := r.Group("/api")
	api.Use(s.requireToken(jwt.StageComplete))
	api.GET("/me", s.me)
	return r
}

func (s *Server) sendVerification(email, token string) {
	s.outbox.send(Mail{
		To:     normalizeEmail(email),
		Kind:   MailVerification,
		Link:   s.config.PublicURL + "/verify-email?token=" + token,
		SentAt: s.config.Now(),
	})
}

// requestLogger logs one line per request. Bodies are never logged.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("request")
	}
}
