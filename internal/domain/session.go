package domain

import "time"

// Session is the sole persisted entity: one row per onboarding session,
// keyed by a textual UUID chosen at session start. The verification
// sub-state fields are owned exclusively by the verification service.
type Session struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Name            string     `gorm:"size:256" json:"name"`
	Email           *string    `gorm:"size:256;index" json:"email,omitempty"`
	IPAddress       string     `gorm:"size:64" json:"ip_address,omitempty"`
	ConsentUserData bool       `gorm:"not null;default:false" json:"consent_user_data"`
	CompletedAt     *time.Time `gorm:"index" json:"completed_at,omitempty"`

	VerificationCode      *string    `gorm:"size:6" json:"-"`
	VerificationAttempts  int        `gorm:"not null;default:0" json:"-"`
	VerificationExpiresAt *time.Time `gorm:"index" json:"-"`
	IsEmailVerified       bool       `gorm:"not null;default:false" json:"is_email_verified"`
	ResendAttempts        int        `gorm:"not null;default:0" json:"-"`
	LastResendAt          *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasOutstandingCode reports whether a verification code is live on the
// session. A session never holds both a live code and verified status.
func (s *Session) HasOutstandingCode() bool {
	return s.VerificationCode != nil && s.VerificationExpiresAt != nil && !s.IsEmailVerified
}

func (s *Session) CodeExpired(now time.Time) bool {
	return s.VerificationExpiresAt != nil && now.After(*s.VerificationExpiresAt)
}

// ResetVerification returns the sub-state to its initial shape, as after
// session creation. Used by the cleanup sweep and by locked-out restarts.
func (s *Session) ResetVerification() {
	s.VerificationCode = nil
	s.VerificationExpiresAt = nil
	s.VerificationAttempts = 0
	s.IsEmailVerified = false
}
