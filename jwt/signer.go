package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Stage values carried in the "stage" claim.
const (
	// StagePassword marks a temporary token: password verified, second factor outstanding.
	StagePassword = "password"
	// StageComplete marks a final session token.
	StageComplete = "complete"
)

// SignerConfig configures [Signer].
type SignerConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	config SignerConfig
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret
	return &Signer{config: cfg}, nil
}

// Sign issues a token for subject at the given stage.
func (s *Signer) Sign(subject, stage string, roles []string) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}
	now := time.Now()
	claims := tokenClaims{
		Stage: stage,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
}

// Verify checks signature, expiry, issuer, and the expected stage.
func (s *Signer) Verify(token, stage string) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	var tc tokenClaims
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &tc, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.config.Secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}
	if stage != "" && tc.Stage != stage {
		return Claims{}, fmt.Errorf("unexpected token stage %q", tc.Stage)
	}
	return toClaims(&tc), nil
}
