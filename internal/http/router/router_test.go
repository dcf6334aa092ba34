package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/health"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/handler"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/security"
	"github.com/onboardworks/chat-onboarding-backend/internal/service"
	"github.com/onboardworks/chat-onboarding-backend/internal/storage"
	"github.com/onboardworks/chat-onboarding-backend/internal/upload"
)

type memorySender struct {
	sent []string
}

func (m *memorySender) SendVerificationCode(email, code string) error {
	m.sent = append(m.sent, code)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memorySender, repository.SessionRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewSessionRepository(db)
	store := storage.NewMemoryArtifactStore()
	sender := &memorySender{}
	tokens := security.NewSessionTokenManager("onboarding-test", "chat", "test-secret", time.Hour)

	lifecycle := service.NewLifecycleService(repo, store)
	verification := service.NewVerificationService(repo, sender, tokens, nil, 10*time.Minute, 30*time.Second)
	uploads := upload.NewService(repo, store, 1<<20)

	readiness := health.NewProbeRunner(time.Millisecond, time.Second)

	h := NewRouter(Dependencies{
		SessionHandler:      handler.NewSessionHandler(lifecycle),
		VerificationHandler: handler.NewVerificationHandler(verification, 24*time.Hour),
		UploadHandler:       handler.NewUploadHandler(uploads, 1<<20),
		CORSOrigins:         []string{"*"},
		BodyLimitBytes:      1 << 20,
		APIRateLimitRPM:     1000,
		VerifyRateLimitRPM:  1000,
		MaintenanceAPIKey:   "maint-key",
		Readiness:           readiness,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, sender, repo
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET live: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionCreateAndVerificationFlow(t *testing.T) {
	srv, sender, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{
		"name":              "Dana",
		"consent_user_data": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data := env["data"].(map[string]any)
	id := data["id"].(string)
	if id == "" {
		t.Fatal("expected a generated session id")
	}

	resp = postJSON(t, srv.URL+"/api/v1/sessions/"+id+"/verification/send", map[string]any{
		"email": "dana@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 delivered code, got %d", len(sender.sent))
	}

	resp = postJSON(t, srv.URL+"/api/v1/sessions/"+id+"/verification/verify", map[string]any{
		"code": sender.sent[0],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}
	env = decodeEnvelope(t, resp)
	data = env["data"].(map[string]any)
	if data["next"] != "CHAT_READY" {
		t.Fatalf("next = %v, want CHAT_READY", data["next"])
	}
	if data["chat_token"] == nil || data["chat_token"] == "" {
		t.Fatal("expected a chat token on successful verification")
	}
}

func TestVerificationErrorCarriesNextHint(t *testing.T) {
	srv, sender, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{"name": "Lee"})
	env := decodeEnvelope(t, resp)
	id := env["data"].(map[string]any)["id"].(string)

	resp = postJSON(t, srv.URL+"/api/v1/sessions/"+id+"/verification/send", map[string]any{
		"email": "lee@example.com",
	})
	resp.Body.Close()
	if len(sender.sent) != 1 {
		t.Fatalf("expected a delivered code, got %d", len(sender.sent))
	}

	resp = postJSON(t, srv.URL+"/api/v1/sessions/"+id+"/verification/verify", map[string]any{
		"code": "000000",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("mismatch status = %d", resp.StatusCode)
	}
	env = decodeEnvelope(t, resp)
	apiErr := env["error"].(map[string]any)
	if apiErr["code"] != "CODE_MISMATCH" {
		t.Fatalf("error code = %v", apiErr["code"])
	}
	if apiErr["next"] != "CODE_INPUT" {
		t.Fatalf("next = %v, want CODE_INPUT", apiErr["next"])
	}
}

func TestVerificationUnknownSessionIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/3f0e8a3e-0000-4000-8000-000000000000/verification/resend", map[string]any{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMaintenanceRequiresAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/maintenance/verification-cleanup", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/maintenance/verification-cleanup", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Api-Key", "maint-key")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if _, ok := env["data"].(map[string]any)["reset_rows"]; !ok {
		t.Fatal("expected reset_rows in cleanup response")
	}
}

func TestDocumentUploadRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{"name": "Ada"})
	env := decodeEnvelope(t, resp)
	id := env["data"].(map[string]any)["id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("document", "cv.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("%PDF-1.4 minimal"))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/document", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}
