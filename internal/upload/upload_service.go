package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/onboardworks/chat-onboarding-backend/internal/observability"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/storage"
)

// ObjectName is the fixed key suffix for a session's uploaded document.
// One PDF per session; the artifact lives at "<sessionID>/document.pdf".
const ObjectName = "document.pdf"

var (
	ErrNotPDF          = errors.New("uploaded file is not a PDF")
	ErrTooLarge        = errors.New("uploaded file exceeds the size limit")
	ErrAlreadyUploaded = errors.New("session already has an uploaded document")
	ErrSessionNotFound = repository.ErrSessionNotFound
)

var pdfMagic = []byte("%PDF-")

// Service accepts a single PDF upload per session into the artifact
// store.
type Service struct {
	repo     repository.SessionRepository
	store    storage.ArtifactStore
	maxBytes int64
}

func NewService(repo repository.SessionRepository, store storage.ArtifactStore, maxBytes int64) *Service {
	return &Service{repo: repo, store: store, maxBytes: maxBytes}
}

// Store validates and persists the document for sessionID.
func (s *Service) Store(ctx context.Context, sessionID string, data []byte) error {
	exists, err := s.repo.Exists(ctx, sessionID)
	if err != nil {
		observability.RecordUpload(ctx, "error")
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		observability.RecordUpload(ctx, "session_not_found")
		return ErrSessionNotFound
	}
	if int64(len(data)) > s.maxBytes {
		observability.RecordUpload(ctx, "too_large")
		return ErrTooLarge
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		observability.RecordUpload(ctx, "not_pdf")
		return ErrNotPDF
	}

	key := sessionID + "/" + ObjectName
	if _, err := s.store.Get(ctx, key); err == nil {
		observability.RecordUpload(ctx, "duplicate")
		return ErrAlreadyUploaded
	} else if !errors.Is(err, storage.ErrObjectNotFound) {
		observability.RecordUpload(ctx, "error")
		return fmt.Errorf("check existing document: %w", err)
	}

	if err := s.store.Put(ctx, key, data); err != nil {
		observability.RecordUpload(ctx, "error")
		return fmt.Errorf("store document: %w", err)
	}
	observability.RecordUpload(ctx, "success")
	observability.Audit(ctx, "upload.stored", sessionID, "bytes", len(data))
	return nil
}

// Fetch returns the stored document for sessionID.
func (s *Service) Fetch(ctx context.Context, sessionID string) ([]byte, error) {
	return s.store.Get(ctx, sessionID+"/"+ObjectName)
}
