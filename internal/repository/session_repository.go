package repository

import (
	"context"
	"errors"
	"time"

	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Exists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	// Mutate runs load -> fn -> write-whole-record inside one transaction
	// so a concurrent request for the same session sees either the pre-
	// or post-state entirely, never a partial mix.
	Mutate(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error)
	// CleanupExpiredVerifications resets the verification sub-state of
	// rows whose code expired before cutoff and is still outstanding.
	CleanupExpiredVerifications(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "get_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "get_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "get_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "exists", "success")
	return count > 0, nil
}

func (r *GormSessionRepository) Save(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Save(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "save", "success")
	return nil
}

func (r *GormSessionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "delete", "not_found")
		return ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete", "success")
	return nil
}

func (r *GormSessionRepository) Mutate(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	var out *domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		q := tx.Where("id = ?", id)
		// Row locking is only meaningful on postgres; sqlite serializes
		// writers at the database level.
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		out = &s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "mutate", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "session", "mutate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "mutate", "success")
	return out, nil
}

func (r *GormSessionRepository) CleanupExpiredVerifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("verification_code IS NOT NULL AND verification_expires_at IS NOT NULL AND verification_expires_at < ?", cutoff).
		Updates(map[string]any{
			"verification_code":       nil,
			"verification_expires_at": nil,
			"verification_attempts":   0,
			"is_email_verified":       false,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired_verifications", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired_verifications", "success")
	return res.RowsAffected, nil
}
