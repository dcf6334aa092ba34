package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/onboardworks/chat-onboarding-backend/internal/http/response"
	"github.com/onboardworks/chat-onboarding-backend/internal/service"
)

type SessionHandler struct {
	lifecycle *service.LifecycleService
}

func NewSessionHandler(lifecycle *service.LifecycleService) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle}
}

type createSessionRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ConsentUserData bool   `json:"consent_user_data"`
}

type createSessionResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// Create persists a session under the client-proposed identifier,
// reassigning it on collision. The returned id is authoritative.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if req.ID == "" {
		id, err := h.lifecycle.GenerateUniqueIdentifier(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "identifier generation failed", "error", err)
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not start a session", nil)
			return
		}
		req.ID = id
	}

	resultID, created, err := h.lifecycle.PersistSession(r.Context(), req.ID, req.Name, req.Email, clientIP(r), req.ConsentUserData)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			response.Error(w, r, http.StatusBadRequest, "INVALID_SESSION", "session id must be a UUID", nil)
			return
		}
		slog.ErrorContext(r.Context(), "persist session failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not start a session", nil)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(w, r, status, createSessionResponse{ID: resultID, Created: created})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
