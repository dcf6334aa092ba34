package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sid = "0b26f174-26ac-4b4c-8008-9b0c7bd969e7"

func newServiceForTest(t *testing.T, maxBytes int64) (*Service, *storage.MemoryArtifactStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		t.Fatalf("migrate session: %v", err)
	}
	repo := repository.NewSessionRepository(db)
	if err := repo.Create(context.Background(), &domain.Session{ID: sid}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	store := storage.NewMemoryArtifactStore()
	return NewService(repo, store, maxBytes), store
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 14)
	pdf.Cell(40, 10, "onboarding document")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("build pdf fixture: %v", err)
	}
	return buf.Bytes()
}

func TestStoreAcceptsSinglePDF(t *testing.T) {
	ctx := context.Background()
	svc, store := newServiceForTest(t, 10<<20)
	doc := samplePDF(t)

	if err := svc.Store(ctx, sid, doc); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := store.Get(ctx, sid+"/"+ObjectName)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, doc) {
		t.Fatal("stored payload mismatch")
	}

	fetched, err := svc.Fetch(ctx, sid)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(fetched, doc) {
		t.Fatal("fetched payload mismatch")
	}

	if err := svc.Store(ctx, sid, doc); !errors.Is(err, ErrAlreadyUploaded) {
		t.Fatalf("expected ErrAlreadyUploaded, got %v", err)
	}
}

func TestStoreRejectsBadUploads(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServiceForTest(t, 64)

	if err := svc.Store(ctx, sid, []byte("plain text, not a pdf")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
	if err := svc.Store(ctx, sid, bytes.Repeat([]byte("a"), 100)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if err := svc.Store(ctx, "99999999-9999-4999-8999-999999999999", []byte("%PDF-1.4")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
