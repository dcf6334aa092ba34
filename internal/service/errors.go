package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session and verification flows. Input-shape
// errors are rejected before touching the store; rate-limit and expiry
// conditions are expected user-correctable outcomes, not faults.
var (
	ErrInvalidSession           = errors.New("invalid session identifier")
	ErrInvalidEmailFormat       = errors.New("invalid email format")
	ErrResendLimitReached       = errors.New("resend limit reached")
	ErrResendCooldownActive     = errors.New("resend cooldown active")
	ErrNoCodeOutstanding        = errors.New("no verification code outstanding")
	ErrCodeExpired              = errors.New("verification code expired")
	ErrAttemptsExhausted        = errors.New("verification attempts exhausted")
	ErrNoEmailOnFile            = errors.New("no email on file")
	ErrNotificationFailed       = errors.New("verification email delivery failed")
	ErrSendLimitReached         = errors.New("too many verification emails requested")
	ErrIdentifierSpaceExhausted = errors.New("could not generate a unique session identifier")
)

// CodeMismatchError reports a wrong code together with how many attempts
// remain before the session locks.
type CodeMismatchError struct {
	Remaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("verification code mismatch, %d attempts remaining", e.Remaining)
}
