package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/mailer"
	"github.com/onboardworks/chat-onboarding-backend/internal/observability"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/security"
)

const (
	MaxVerificationAttempts = 3
	MaxResendAttempts       = 3
)

// VerificationService drives the email-verification state machine:
// NO_CODE -> CODE_PENDING -> VERIFIED, with CODE_PENDING cycling back via
// resend and locking once either ceiling is hit. Every state-changing
// transition runs inside one repository Mutate transaction.
type VerificationService struct {
	repo           repository.SessionRepository
	sender         mailer.Sender
	tokens         *security.SessionTokenManager
	guard          SendGuard
	codeTTL        time.Duration
	resendCooldown time.Duration

	now func() time.Time
}

func NewVerificationService(
	repo repository.SessionRepository,
	sender mailer.Sender,
	tokens *security.SessionTokenManager,
	guard SendGuard,
	codeTTL time.Duration,
	resendCooldown time.Duration,
) *VerificationService {
	if guard == nil {
		guard = NoopSendGuard{}
	}
	return &VerificationService{
		repo:           repo,
		sender:         sender,
		tokens:         tokens,
		guard:          guard,
		codeTTL:        codeTTL,
		resendCooldown: resendCooldown,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SendVerificationCode generates a code, stores email+code+expiry on the
// session, resets the attempt counter and sends the email. The resend
// ceiling and cooldown both gate it; when both are violated the ceiling
// wins, since it is the terminal condition.
func (s *VerificationService) SendVerificationCode(ctx context.Context, sessionID, email, ip string) Result {
	if !security.ValidEmailFormat(email) {
		observability.RecordVerificationTransition(ctx, "send", "invalid_email")
		return errorResult("INVALID_EMAIL_FORMAT", "enter a valid email address", TransitionEmailInput)
	}

	allowed, err := s.guard.Allow(ctx, email, ip)
	if err != nil {
		// Fail open: the guard is an abuse backstop, not the policy.
		slog.WarnContext(ctx, "send guard unavailable, allowing", "error", err)
		allowed = true
	}
	if !allowed {
		observability.RecordVerificationTransition(ctx, "send", "guard_limited")
		s.audit(ctx, "verification.send", sessionID, "guard_limited", email)
		return errorResult("RATE_LIMITED", "too many verification emails requested, try again later", TransitionEmailInput)
	}

	_, err = s.repo.Mutate(ctx, sessionID, func(sess *domain.Session) error {
		if err := s.checkResendGates(sess); err != nil {
			return err
		}
		return s.issueAndSend(sess, email)
	})
	if err != nil {
		return s.sendFailure(ctx, "send", sessionID, email, err)
	}

	observability.RecordVerificationTransition(ctx, "send", "success")
	s.audit(ctx, "verification.send", sessionID, "success", email)
	return successResult(TransitionCodeInput, "verification code sent")
}

// VerifyCode checks a submitted code. The attempt counter is incremented
// before the comparison, so a wrong final guess is consumed and reported
// as exhaustion rather than a plain mismatch.
func (s *VerificationService) VerifyCode(ctx context.Context, sessionID, code string) Result {
	var outcome Result
	_, err := s.repo.Mutate(ctx, sessionID, func(sess *domain.Session) error {
		now := s.now()
		if sess.IsEmailVerified {
			// Idempotent success; no attempt is consumed.
			outcome = s.verifiedResult(ctx, sessionID)
			return nil
		}
		if !sess.HasOutstandingCode() {
			return ErrNoCodeOutstanding
		}
		if sess.CodeExpired(now) {
			return ErrCodeExpired
		}
		if sess.VerificationAttempts >= MaxVerificationAttempts {
			return ErrAttemptsExhausted
		}

		sess.VerificationAttempts++
		if *sess.VerificationCode != code {
			remaining := MaxVerificationAttempts - sess.VerificationAttempts
			if remaining < 0 {
				remaining = 0
			}
			// The increment must survive the mismatch, so the
			// failure is carried in the outcome, not the error.
			outcome = s.mismatchResult(remaining)
			return nil
		}

		sess.VerificationCode = nil
		sess.VerificationExpiresAt = nil
		sess.IsEmailVerified = true
		outcome = s.verifiedResult(ctx, sessionID)
		return nil
	})
	if err != nil {
		return s.verifyFailure(ctx, sessionID, err)
	}

	outcomeTag := "success"
	if outcome.Status == StatusError {
		outcomeTag = outcome.Code
	}
	observability.RecordVerificationTransition(ctx, "verify", outcomeTag)
	observability.Audit(ctx, "verification.verify", sessionID, "outcome", outcomeTag)
	return outcome
}

// ResendCode re-issues a code to the email already on file. Already
// verified sessions short-circuit to success.
func (s *VerificationService) ResendCode(ctx context.Context, sessionID string) Result {
	var outcome *Result
	var email string
	_, err := s.repo.Mutate(ctx, sessionID, func(sess *domain.Session) error {
		if sess.IsEmailVerified {
			r := s.verifiedResult(ctx, sessionID)
			outcome = &r
			return nil
		}
		if sess.Email == nil || *sess.Email == "" {
			return ErrNoEmailOnFile
		}
		if err := s.checkResendGates(sess); err != nil {
			return err
		}
		email = *sess.Email
		return s.issueAndSend(sess, email)
	})
	if err != nil {
		return s.sendFailure(ctx, "resend", sessionID, email, err)
	}
	if outcome != nil {
		observability.RecordVerificationTransition(ctx, "resend", "already_verified")
		observability.Audit(ctx, "verification.resend", sessionID, "outcome", "already_verified")
		return *outcome
	}

	observability.RecordVerificationTransition(ctx, "resend", "success")
	s.audit(ctx, "verification.resend", sessionID, "success", email)
	return successResult(TransitionCodeInput, "verification code sent")
}

// CleanupExpiredVerifications resets the verification sub-state of
// sessions whose code expired more than maxAge ago. Best-effort sweep,
// safe to run concurrently with live traffic.
func (s *VerificationService) CleanupExpiredVerifications(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	n, err := s.repo.CleanupExpiredVerifications(ctx, cutoff)
	if err != nil {
		observability.RecordVerificationTransition(ctx, "cleanup", "error")
		return 0, fmt.Errorf("cleanup expired verifications: %w", err)
	}
	observability.RecordVerificationTransition(ctx, "cleanup", "success")
	slog.InfoContext(ctx, "verification cleanup sweep finished", "reset_rows", n, "cutoff", cutoff)
	return n, nil
}

// checkResendGates enforces the resend-attempt ceiling before the
// cooldown: the ceiling is terminal while the cooldown would pass on its
// own, so the user is told to restart rather than wait.
func (s *VerificationService) checkResendGates(sess *domain.Session) error {
	if sess.ResendAttempts >= MaxResendAttempts {
		return ErrResendLimitReached
	}
	if sess.LastResendAt != nil && s.now().Sub(*sess.LastResendAt) < s.resendCooldown {
		return ErrResendCooldownActive
	}
	return nil
}

// issueAndSend mutates sess with a fresh code and delivers it. Called
// inside a Mutate transaction: a delivery failure rolls the whole
// transition back.
func (s *VerificationService) issueAndSend(sess *domain.Session, email string) error {
	code, err := security.GenerateCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	now := s.now()
	expiry := now.Add(s.codeTTL)

	sess.Email = &email
	sess.VerificationCode = &code
	sess.VerificationExpiresAt = &expiry
	sess.VerificationAttempts = 0
	sess.IsEmailVerified = false
	sess.ResendAttempts++
	sess.LastResendAt = &now

	if err := s.sender.SendVerificationCode(email, code); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

func (s *VerificationService) verifiedResult(ctx context.Context, sessionID string) Result {
	r := successResult(TransitionChatReady, "email verified")
	if s.tokens != nil {
		token, err := s.tokens.Sign(sessionID)
		if err != nil {
			slog.ErrorContext(ctx, "chat token mint failed", "session_id", sessionID, "error", err)
		} else {
			r.ChatToken = token
		}
	}
	return r
}

func (s *VerificationService) mismatchResult(remaining int) Result {
	next := TransitionCodeInput
	msg := fmt.Sprintf("wrong code, %d attempts remaining", remaining)
	if remaining == 0 {
		next = TransitionSessionReset
		msg = "wrong code and no attempts remaining, restart the session"
	}
	r := errorResult("CODE_MISMATCH", msg, next)
	r.Remaining = &remaining
	return r
}

func (s *VerificationService) sendFailure(ctx context.Context, op, sessionID, email string, err error) Result {
	var result Result
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		result = errorResult("SESSION_NOT_FOUND", "unknown session", TransitionSessionError)
	case errors.Is(err, ErrNoEmailOnFile):
		result = errorResult("NO_EMAIL_ON_FILE", "submit an email address first", TransitionEmailInput)
	case errors.Is(err, ErrResendLimitReached):
		result = errorResult("RESEND_LIMIT_REACHED", "too many codes requested, restart the session", TransitionSessionReset)
	case errors.Is(err, ErrResendCooldownActive):
		result = errorResult("RESEND_COOLDOWN_ACTIVE", "wait before requesting another code", TransitionCodeInput)
	case errors.Is(err, ErrNotificationFailed):
		result = errorResult("NOTIFICATION_FAILED", "could not deliver the verification email, try again", TransitionEmailInput)
	default:
		slog.ErrorContext(ctx, "verification send failed", "operation", op, "session_id", sessionID, "error", err)
		result = errorResult("INTERNAL", "something went wrong, try again", TransitionSessionError)
	}
	observability.RecordVerificationTransition(ctx, op, result.Code)
	s.audit(ctx, "verification."+op, sessionID, result.Code, email)
	return result
}

func (s *VerificationService) verifyFailure(ctx context.Context, sessionID string, err error) Result {
	var result Result
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		result = errorResult("SESSION_NOT_FOUND", "unknown session", TransitionSessionError)
	case errors.Is(err, ErrNoCodeOutstanding):
		result = errorResult("NO_CODE_OUTSTANDING", "request a verification code first", TransitionEmailInput)
	case errors.Is(err, ErrCodeExpired):
		result = errorResult("CODE_EXPIRED", "the code expired, request a new one", TransitionCodeInput)
	case errors.Is(err, ErrAttemptsExhausted):
		result = errorResult("ATTEMPTS_EXHAUSTED", "no attempts remaining, restart the session", TransitionSessionReset)
	default:
		slog.ErrorContext(ctx, "verification verify failed", "session_id", sessionID, "error", err)
		result = errorResult("INTERNAL", "something went wrong, try again", TransitionSessionError)
	}
	observability.RecordVerificationTransition(ctx, "verify", result.Code)
	observability.Audit(ctx, "verification.verify", sessionID, "outcome", result.Code)
	return result
}

// audit emits one event with the email redacted. Codes are never logged.
func (s *VerificationService) audit(ctx context.Context, event, sessionID, outcome, email string) {
	attrs := []any{"outcome", outcome}
	if email != "" {
		attrs = append(attrs, "email_hash", security.HashEmail(email))
	}
	observability.Audit(ctx, event, sessionID, attrs...)
}
