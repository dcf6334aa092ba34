package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onboardworks/chat-onboarding-backend/internal/http/response"
	"github.com/onboardworks/chat-onboarding-backend/internal/upload"
)

type UploadHandler struct {
	uploads  *upload.Service
	maxBytes int64
}

func NewUploadHandler(uploads *upload.Service, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes}
}

// Store accepts the session's single PDF as multipart form field
// "document".
func (h *UploadHandler) Store(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+4096)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		response.Error(w, r, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "document exceeds the size limit", nil)
		return
	}
	file, _, err := r.FormFile("document")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_UPLOAD", "multipart field 'document' is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_UPLOAD", "could not read the uploaded file", nil)
		return
	}

	if err := h.uploads.Store(r.Context(), chi.URLParam(r, "id"), data); err != nil {
		switch {
		case errors.Is(err, upload.ErrSessionNotFound):
			response.Error(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "unknown session", nil)
		case errors.Is(err, upload.ErrNotPDF):
			response.Error(w, r, http.StatusUnsupportedMediaType, "NOT_PDF", "only PDF documents are accepted", nil)
		case errors.Is(err, upload.ErrTooLarge):
			response.Error(w, r, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "document exceeds the size limit", nil)
		case errors.Is(err, upload.ErrAlreadyUploaded):
			response.Error(w, r, http.StatusConflict, "ALREADY_UPLOADED", "this session already has a document", nil)
		default:
			slog.ErrorContext(r.Context(), "document upload failed", "error", err)
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not store the document", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{"stored": true, "object": upload.ObjectName})
}
