// Package forms holds the local input rules shared by the flows and the
// development server: email grammar, one-time code shape, and the password
// policy.
package forms

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// EmailPattern is the accepted address grammar.
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// DefaultCodeDigits is the length of a one-time code.
const DefaultCodeDigits = 6

var (
	// ErrTooShort is returned by [Policy.Check] for short passwords.
	ErrTooShort = errors.New("password too short")
	// ErrCharacterClass is returned by [Policy.Check] when a letter or digit is missing.
	ErrCharacterClass = errors.New("password must contain a letter and a digit")
)

var (
	defaultOnce sync.Once
	defaultV    *validator.Validate
)

// Default returns the shared validator with custom rules registered.
func Default() *validator.Validate {
	defaultOnce.Do(func() {
		defaultV = validator.New()
		RegisterCustomValidations(defaultV)
	})
	return defaultV
}

// RegisterCustomValidations registers ledger_email and digits on v.
func RegisterCustomValidations(v *validator.Validate) {
	_ = v.RegisterValidation("ledger_email", validateEmail)
	_ = v.RegisterValidation("digits", validateDigits)
}

// validateEmail checks the address grammar.
func validateEmail(fl validator.FieldLevel) bool {
	return EmailPattern.MatchString(fl.Field().String())
}

// validateDigits checks for exactly param ASCII digits (default 6).
func validateDigits(fl validator.FieldLevel) bool {
	n := DefaultCodeDigits
	if p := fl.Param(); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed <= 0 {
			return false
		}
		n = parsed
	}
	return isDigits(fl.Field().String(), n)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidEmail reports whether email matches [EmailPattern].
func ValidEmail(email string) bool {
	return Default().Var(email, "required,ledger_email") == nil
}

// ValidCode reports whether code is exactly digits ASCII digits.
func ValidCode(code string, digits int) bool {
	if digits <= 0 {
		digits = DefaultCodeDigits
	}
	return Default().Var(code, "required,digits="+strconv.Itoa(digits)) == nil
}

// Policy is the local password policy.
type Policy struct {
	MinLength     int
	RequireLetter bool
	RequireDigit  bool
}

// DefaultPolicy requires eight characters with a letter and a digit.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, RequireLetter: true, RequireDigit: true}
}

// Check returns ErrTooShort or ErrCharacterClass, or nil.
func (p Policy) Check(password string) error {
	min := p.MinLength
	if min <= 0 {
		min = 8
	}
	if len([]rune(password)) < min {
		return ErrTooShort
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if (p.RequireLetter && !letter) || (p.RequireDigit && !digit) {
		return ErrCharacterClass
	}
	return nil
}

// Message renders validation and policy errors as one line of text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrTooShort):
		return "Password is too short"
	case errors.Is(err, ErrCharacterClass):
		return "Password must contain at least one letter and one number"
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		messages := make([]string, 0, len(ve))
		for _, fe := range ve {
			field := fe.Field()
			if field == "" {
				field = "value"
			}
			switch fe.Tag() {
			case "required":
				messages = append(messages, field+" is required")
			case "ledger_email", "email":
				messages = append(messages, "invalid email format")
			case "digits":
				param := fe.Param()
				if param == "" {
					param = strconv.Itoa(DefaultCodeDigits)
				}
				messages = append(messages, field+" must be exactly "+param+" digits")
			case "min":
				messages = append(messages, field+" must be at least "+fe.Param()+" characters")
			case "eqfield":
				messages = append(messages, field+" must match "+fe.Param())
			default:
				messages = append(messages, field+" is invalid")
			}
		}
		return strings.Join(messages, ", ")
	}
	return err.Error()
}
