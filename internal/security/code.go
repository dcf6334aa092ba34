package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the number of digits in a verification code.
	CodeLength = 6

	// EmailHashCost is the bcrypt cost used when redacting email
	// addresses for audit logs.
	EmailHashCost = 12
)

// GenerateCode returns a 6-digit numeric verification code. Each digit is
// drawn independently and uniformly from a cryptographically secure
// source. Codes are scoped per session and short-lived, so cross-session
// collisions are acceptable.
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("draw code digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashEmail produces a one-way bcrypt hash of an email address for audit
// redaction. Never used for lookup or equality comparison of live data.
func HashEmail(email string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(strings.ToLower(strings.TrimSpace(email))), EmailHashCost)
	if err != nil {
		// bcrypt only fails on oversized input; redact fully rather
		// than leak the address.
		return "redacted"
	}
	return string(h)
}

// ValidEmailFormat reports whether the address parses as a bare RFC 5322
// address (no display name, single recipient).
func ValidEmailFormat(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email, ".")
}

// ExpiryTimestamp returns the moment d from now, used to stamp
// verification_expires_at.
func ExpiryTimestamp(d time.Duration) time.Time {
	return time.Now().UTC().Add(d)
}
