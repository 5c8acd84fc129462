package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/ledgerAuth/jwt"
)

var errInvalidRoles = errors.New("invalid role list")

// encodeRoles stores a role list as a JSON array. A nil list is written as [].
func encodeRoles(roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeRoles parses a persisted JSON array of role names. Blank entries are
// dropped.
func decodeRoles(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, errInvalidRoles
	}
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, errInvalidRoles
	}
	out := roles[:0]
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// withDerived fills the claim-derived fields when the token is shaped like a
// signed token. Opaque tokens are left as-is.
func withDerived(s Session) Session {
	s.Subject = ""
	s.ExpiresAt = time.Time{}
	claims, err := jwt.Inspect(s.Token)
	if err != nil {
		return s
	}
	s.Subject = claims.Subject
	s.ExpiresAt = claims.ExpiresAt
	return s
}
