package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onboardworks/chat-onboarding-backend/internal/http/response"
	"github.com/onboardworks/chat-onboarding-backend/internal/service"
)

type VerificationHandler struct {
	verification *service.VerificationService
	cleanupAge   time.Duration
}

func NewVerificationHandler(verification *service.VerificationService, cleanupAge time.Duration) *VerificationHandler {
	return &VerificationHandler{verification: verification, cleanupAge: cleanupAge}
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (h *VerificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body", nil)
		return
	}
	res := h.verification.SendVerificationCode(r.Context(), chi.URLParam(r, "id"), req.Email, clientIP(r))
	writeResult(w, r, res)
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body", nil)
		return
	}
	res := h.verification.VerifyCode(r.Context(), chi.URLParam(r, "id"), req.Code)
	writeResult(w, r, res)
}

func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	res := h.verification.ResendCode(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, r, res)
}

// Cleanup runs the out-of-band sweep; invoked by cron through the
// maintenance route or the cleanup CLI command.
func (h *VerificationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.verification.CleanupExpiredVerifications(r.Context(), h.cleanupAge)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "cleanup sweep failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"reset_rows": n})
}

// writeResult maps a verification Result onto the response envelope. The
// next-transition hint rides along on both success and error payloads.
func writeResult(w http.ResponseWriter, r *http.Request, res service.Result) {
	if res.Status == service.StatusSuccess {
		response.JSON(w, r, http.StatusOK, res)
		return
	}
	response.ErrorWithNext(w, r, statusForCode(res.Code), res.Code, res.Message, errorDetails(res), string(res.NextTransition))
}

func errorDetails(res service.Result) interface{} {
	if res.Remaining == nil {
		return nil
	}
	return map[string]int{"remaining_attempts": *res.Remaining}
}

func statusForCode(code string) int {
	switch code {
	case "SESSION_NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_EMAIL_FORMAT", "NO_EMAIL_ON_FILE", "NO_CODE_OUTSTANDING":
		return http.StatusBadRequest
	case "RESEND_LIMIT_REACHED", "RESEND_COOLDOWN_ACTIVE", "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "CODE_MISMATCH", "CODE_EXPIRED":
		return http.StatusUnprocessableEntity
	case "ATTEMPTS_EXHAUSTED":
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
