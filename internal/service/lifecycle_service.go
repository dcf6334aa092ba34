package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/observability"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/storage"
)

// maxGenerateAttempts bounds the UUID draw loop. Collisions among random
// 128-bit values at this volume should never occur; repeated failure
// signals a store-level problem, not bad luck.
const maxGenerateAttempts = 3

// LifecycleService validates and generates session identifiers and
// resolves collisions by relocating uploaded artifacts to the new id.
type LifecycleService struct {
	repo      repository.SessionRepository
	artifacts storage.ArtifactStore
}

func NewLifecycleService(repo repository.SessionRepository, artifacts storage.ArtifactStore) *LifecycleService {
	return &LifecycleService{repo: repo, artifacts: artifacts}
}

// IsValidIdentifier reports whether v is a standard textual UUID. Pure
// syntactic check, no side effects.
func (s *LifecycleService) IsValidIdentifier(v string) bool {
	if len(v) != 36 {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}

// GenerateUniqueIdentifier draws up to maxGenerateAttempts random UUIDs
// and returns the first one not already present in the store.
func (s *LifecycleService) GenerateUniqueIdentifier(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		candidate := uuid.NewString()
		exists, err := s.repo.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check identifier existence: %w", err)
		}
		if !exists {
			observability.Audit(ctx, "session.id.generated", candidate, "attempt", attempt)
			return candidate, nil
		}
		observability.RecordSessionCollision(ctx, "generate")
		observability.Audit(ctx, "session.id.collision", candidate, "attempt", attempt)
	}
	return "", ErrIdentifierSpaceExhausted
}

// PersistSession creates the session row for id, or — when id is already
// taken — under a freshly generated identifier after relocating any
// uploaded artifacts to the new namespace. The returned id is
// authoritative; on collision the old id becomes invalid for future
// artifact lookups.
func (s *LifecycleService) PersistSession(ctx context.Context, id, name, email, ip string, consent bool) (string, bool, error) {
	if id == "" || !s.IsValidIdentifier(id) {
		observability.RecordSessionPersist(ctx, "invalid_id", false)
		return "", false, ErrInvalidSession
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		observability.RecordSessionPersist(ctx, "error", false)
		return "", false, fmt.Errorf("check session existence: %w", err)
	}

	resultID := id
	created := !exists
	if exists {
		observability.RecordSessionCollision(ctx, "persist")
		resultID, err = s.GenerateUniqueIdentifier(ctx)
		if err != nil {
			observability.RecordSessionPersist(ctx, "error", false)
			return "", false, err
		}
		s.relocateArtifacts(ctx, id, resultID)
	}

	row := &domain.Session{
		ID:              resultID,
		Name:            name,
		IPAddress:       ip,
		ConsentUserData: consent,
	}
	if email != "" {
		row.Email = &email
	}
	if err := s.repo.Create(ctx, row); err != nil {
		observability.RecordSessionPersist(ctx, "error", created)
		return "", false, fmt.Errorf("create session row: %w", err)
	}

	observability.RecordSessionPersist(ctx, "success", created)
	observability.Audit(ctx, "session.persisted", resultID, "created", created, "collided", exists)
	return resultID, created, nil
}

// relocateArtifacts moves every object under oldID's namespace to newID's
// via copy-then-delete. The loop is not transactional with the session
// row write: a mid-loop failure strands the remaining objects under the
// old identifier, which is surfaced through audit events only.
func (s *LifecycleService) relocateArtifacts(ctx context.Context, oldID, newID string) {
	prefix := oldID + "/"
	keys, err := s.artifacts.ListByPrefix(ctx, prefix)
	if err != nil {
		slog.ErrorContext(ctx, "artifact listing failed during relocation", "old_id", oldID, "new_id", newID, "error", err)
		observability.Audit(ctx, "session.relocate.partial", newID, "old_id", oldID, "stranded", "unknown")
		return
	}
	for i, key := range keys {
		dst := newID + "/" + strings.TrimPrefix(key, prefix)
		if err := s.artifacts.Copy(ctx, key, dst); err != nil {
			slog.ErrorContext(ctx, "artifact copy failed during relocation", "src", key, "dst", dst, "error", err)
			observability.Audit(ctx, "session.relocate.partial", newID, "old_id", oldID, "stranded", len(keys)-i)
			return
		}
		if err := s.artifacts.Delete(ctx, key); err != nil {
			slog.ErrorContext(ctx, "artifact delete failed during relocation", "src", key, "error", err)
		}
	}
	if len(keys) > 0 {
		observability.Audit(ctx, "session.relocated", newID, "old_id", oldID, "objects", len(keys))
	}
}
