package forms

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidEmail(t *testing.T) {
	good := []string{"bob@example.com", "a.b+c@sub.example.org", "x_y%z@d-o.co"}
	bad := []string{"", "bob", "bob@", "@example.com", "bob@example", "bob@example.c", "bob @example.com"}
	for _, e := range good {
		if !ValidEmail(e) {
			t.Fatalf("expected %q to be valid", e)
		}
	}
	for _, e := range bad {
		if ValidEmail(e) {
			t.Fatalf("expected %q to be invalid", e)
		}
	}
}

func TestValidCode(t *testing.T) {
	if !ValidCode("123456", 6) {
		t.Fatal("expected six digits to be valid")
	}
	for _, c := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		if ValidCode(c, 6) {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
	if !ValidCode("1234", 4) {
		t.Fatal("expected configured length to be honoured")
	}
}

func TestPolicyCheck(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		password string
		want     error
	}{
		{"abc123", ErrTooShort},
		{"abcdefg", ErrTooShort},
		{"abcdefgh", ErrCharacterClass},
		{"12345678", ErrCharacterClass},
		{"abcdefg1", nil},
	}
	for _, tc := range cases {
		if err := p.Check(tc.password); !errors.Is(err, tc.want) {
			t.Fatalf("Check(%q) = %v, want %v", tc.password, err, tc.want)
		}
	}
}

func TestMessageTranslatesValidatorErrors(t *testing.T) {
	type form struct {
		Email string `validate:"required,ledger_email"`
		Code  string `validate:"digits=6"`
	}
	err := Default().Struct(form{Email: "nope", Code: "12"})
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	msg := Message(err)
	if !strings.Contains(msg, "invalid email format") || !strings.Contains(msg, "Code must be exactly 6 digits") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if Message(ErrTooShort) == "" || Message(nil) != "" {
		t.Fatal("unexpected policy message rendering")
	}
}
