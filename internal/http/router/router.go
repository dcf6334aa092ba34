package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onboardworks/chat-onboarding-backend/internal/health"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/handler"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/middleware"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/response"
)

type Dependencies struct {
	SessionHandler      *handler.SessionHandler
	VerificationHandler *handler.VerificationHandler
	UploadHandler       *handler.UploadHandler
	CORSOrigins         []string
	BodyLimitBytes      int64
	APIRateLimitRPM     int
	VerifyRateLimitRPM  int
	MaintenanceAPIKey   string
	GlobalRateLimiter   func(http.Handler) http.Handler
	VerifyRateLimiter   func(http.Handler) http.Handler
	Readiness           *health.ProbeRunner
	EnableOTelHTTP      bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	verifyLimiter := dep.VerifyRateLimiter
	if verifyLimiter == nil {
		verifyLimiter = middleware.NewRateLimiter(dep.VerifyRateLimitRPM, time.Minute, "verify").Middleware()
	}
	bodyLimit := middleware.BodyLimit(dep.BodyLimitBytes)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(bodyLimit).Post("/sessions", dep.SessionHandler.Create)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(verifyLimiter, bodyLimit)
				r.Post("/verification/send", dep.VerificationHandler.Send)
				r.Post("/verification/verify", dep.VerificationHandler.Verify)
				r.Post("/verification/resend", dep.VerificationHandler.Resend)
			})
			// The upload route manages its own body limit.
			r.Post("/document", dep.UploadHandler.Store)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Use(middleware.APIKey(dep.MaintenanceAPIKey))
			r.Post("/verification-cleanup", dep.VerificationHandler.Cleanup)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
