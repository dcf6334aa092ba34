package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SendGuard caps verification-email sends per caller across sessions. It
// is an abuse backstop on top of the per-session resend policy; callers
// fail open when the backing store is unavailable.
type SendGuard interface {
	Allow(ctx context.Context, email, ip string) (bool, error)
}

// NoopSendGuard allows everything. Used when Redis is not configured.
type NoopSendGuard struct{}

func (NoopSendGuard) Allow(context.Context, string, string) (bool, error) { return true, nil }

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}
