package observability

import (
	"context"
	"log/slog"
)

// Audit emits one append-only structured event for a terminal decision in
// the session or verification flow. Fire-and-forget: it never affects the
// caller's success or failure. Emails must be hashed by the caller before
// they reach here; codes are never logged.
func Audit(ctx context.Context, event, sessionID string, attrs ...any) {
	base := []any{
		"event", event,
		"session_id", sessionID,
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
