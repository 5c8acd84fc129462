// Command ledgerauth-devserver runs the in-memory authentication backend for
// local development. Codes and verification links are printed to the log.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
	"github.com/MrEthical07/ledgerAuth/internal/devserver"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:8080", "listen address")
		publicURL = flag.String("public-url", "http://localhost:5173", "base URL of emailed verification links")
		tokenTTL  = flag.Duration("token-ttl", time.Hour, "token lifetime")
		seedUser  = flag.String("seed-user", "bob@example.com:hunter22pass", "verified user account as email:password (empty to skip)")
		seedAdmin = flag.String("seed-admin", "admin@example.com:admin123pass", "verified admin account as email:password (empty to skip)")
		logLevel  = flag.String("log-level", "debug", "log level")
		digits    = flag.Int("code-digits", 6, "length of emailed codes; must match the client's policy.code_digits")
	)
	flag.Parse()

	// DEVSERVER_SECRET may come from a local .env file.
	_ = godotenv.Load()

	logger := ledgerAuth.NewLogger(ledgerAuth.LogConfig{Level: *logLevel, Format: "console"}, os.Stderr).
		With().Str("service", "devserver").Logger()
	gin.SetMode(gin.ReleaseMode)

	secret := []byte(os.Getenv("DEVSERVER_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Fatal().Err(err).Msg("generate secret")
		}
		logger.Warn().Msg("DEVSERVER_SECRET not set; tokens will not survive a restart")
	}

	cfg := devserver.DefaultConfig()
	cfg.Secret = secret
	cfg.TokenTTL = *tokenTTL
	cfg.PublicURL = *publicURL
	cfg.CodeDigits = *digits
	cfg.Logger = logger
	for _, seed := range []struct {
		spec  string
		name  string
		roles []string
	}{
		{*seedUser, "Dev User", []string{"ROLE_USER"}},
		{*seedAdmin, "Dev Admin", []string{"ROLE_USER", "ROLE_ADMIN"}},
	} {
		if seed.spec == "" {
			continue
		}
		email, password, ok := strings.Cut(seed.spec, ":")
		if !ok {
			fmt.Fprintf(os.Stderr, "seed account %q must be email:password\n", seed.spec)
			os.Exit(2)
		}
		cfg.Seed = append(cfg.Seed, devserver.SeedAccount{
			Name: seed.name, Email: email, Password: password, Verified: true, Roles: seed.roles,
		})
	}

	srv, err := devserver.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("devserver config")
	}

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("listen")
	}
	logger.Info().Str("addr", l.Addr().String()).Msg("devserver listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Serve(ctx, l); err != nil {
		logger.Fatal().Err(err).Msg("serve")
	}
	logger.Info().Msg("devserver stopped")
}
