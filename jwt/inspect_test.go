package jwt

import (
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newTestSigner(t testing.TB) *Signer {
	t.Helper()
	s, err := NewSigner(SignerConfig{
		Secret: []byte(strings.Repeat("k", 32)),
		TTL:    time.Minute,
		Issuer: "ledger-test",
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return s
}

func TestInspectReturnsClaims(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.Sign("bob@example.com", StagePassword, []string{"ROLE_USER"})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if claims.Subject != "bob@example.com" || claims.Stage != StagePassword {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "ROLE_USER" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if claims.ExpiresAt.IsZero() || !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Fatalf("expected expiry after issue time, got %+v", claims)
	}
}

func TestInspectRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"opaque-session-id",
		"a.b",
		"a.b.c.d",
		"not.a.jwt",
		"eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.",
	}
	for _, tc := range cases {
		if _, err := Inspect(tc); err != ErrMalformed {
			t.Fatalf("Inspect(%q): expected ErrMalformed, got %v", tc, err)
		}
	}
}

func TestInspectDoesNotRequireKey(t *testing.T) {
	claims := gjwt.MapClaims{"sub": "carol@example.com"}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("unknown-to-the-client"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	got, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if got.Subject != "carol@example.com" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
}

func TestSignerVerifyChecksStage(t *testing.T) {
	s := newTestSigner(t)
	temp, err := s.Sign("bob@example.com", StagePassword, nil)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := s.Verify(temp, StagePassword); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := s.Verify(temp, StageComplete); err == nil {
		t.Fatal("expected stage mismatch to be rejected")
	}
}

func TestSignerRejectsForeignSignature(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewSigner(SignerConfig{Secret: []byte(strings.Repeat("z", 32)), TTL: time.Minute, Issuer: "ledger-test"})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	token, err := other.Sign("bob@example.com", StageComplete, nil)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := s.Verify(token, StageComplete); err == nil {
		t.Fatal("expected foreign signature to be rejected")
	}
}

func TestNewSignerValidation(t *testing.T) {
	if _, err := NewSigner(SignerConfig{Secret: []byte("short"), TTL: time.Minute}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewSigner(SignerConfig{Secret: []byte(strings.Repeat("k", 32))}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
}

// FuzzInspect exercises the unverified parser with arbitrary strings.
// Invalid inputs must be rejected with ErrMalformed and never panic.
func FuzzInspect(f *testing.F) {
	s := newTestSigner(f)
	valid, err := s.Sign("fuzz@example.com", StageComplete, []string{"ROLE_USER"})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, err := Inspect(input)
		if err != nil && err != ErrMalformed {
			t.Fatalf("unexpected error type: %v", err)
		}
	})
}
