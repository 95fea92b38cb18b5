package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"

	"github.com/bluefermion/reviews/internal/middleware"
	"github.com/bluefermion/reviews/internal/telemetry"
)

// submissionCORS opens the submission endpoint to widgets on any origin.
func submissionCORS() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID", "X-Client-Info", "Apikey"}),
	)
}

// Routes builds the router. limiter guards the public submission surface
// and may be nil.
func (h *Handler) Routes(limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(h.log))
	r.Use(telemetry.HTTPMiddleware(h.opts.Service))
	r.Use(h.errors.Recover)

	r.NotFound(h.errors.NotFound)

	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealth)
	r.Get("/embed.js", h.HandleEmbedScript)

	// Public submission endpoint. Every method reaches the handler so wrong
	// methods get the JSON 405 body rather than the router's.
	var submit http.Handler = http.HandlerFunc(h.HandleSubmit)
	if limiter != nil {
		submit = limiter.Handler(submit)
	}
	submit = submissionCORS()(submit)
	r.Handle("/api/reviews", submit)
	r.Handle("/functions/v1/review-submission", submit)

	// Dashboard API
	r.Route("/api/portals", func(r chi.Router) {
		r.Get("/{id}/settings", h.HandlePublicSettings)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.opts.JWTSecret))
			r.Post("/", h.HandleCreatePortal)
			r.Get("/{id}", h.HandleGetPortal)
			r.Put("/{id}/settings", h.HandleUpdateSettings)
			r.Get("/{id}/reviews", h.HandleListReviews)
		})
	})

	// Pages
	r.Get("/thank-you", h.HandleThankYou)
	r.Get("/portal/{id}/share", h.HandleShare)
	r.Get("/widget/preview/{id}", h.HandlePreview)
	r.Get("/{slug}", h.HandleForm)
	if limiter != nil {
		r.With(limiter.Handler).Post("/{slug}", h.HandleFormSubmit)
	} else {
		r.Post("/{slug}", h.HandleFormSubmit)
	}

	return r
}
