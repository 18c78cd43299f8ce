/**
 * @description
 * This file sets up the HTTP router for the Sama Naffa backend. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS and authentication.
 *
 * Surfaces:
 * - /webhooks/intouch: provider callbacks, HMAC-signed, no JWT.
 * - /intents, /accounts: user-facing, JWT-protected.
 * - /admin/*: back office, shared internal API key.
 * - /health, /metrics: operational, unauthenticated.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the web client.
 * - github.com/prometheus/client_golang/prometheus/promhttp: Metrics exposition.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the router's security settings.
type RouterConfig struct {
	JWKSURL        string
	JWTIssuer      string
	AdminAPIKey    string
	AllowedOrigins []string
}

// Routes creates and returns the service's HTTP handler.
func Routes(h *IntentHandlers, wh *WebhookHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Provider callbacks authenticate with an HMAC signature, not a JWT.
	r.Post("/webhooks/intouch", wh.HandleIntouchWebhook)

	// Group routes that require user authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWKSURL, cfg.JWTIssuer))

		r.Post("/intents", h.CreateIntentHandler)
		r.Get("/intents", h.ListIntentsHandler)
		r.Get("/intents/{reference}", h.GetIntentHandler)
		r.Post("/intents/{reference}/cancel", h.CancelIntentHandler)
		r.Get("/accounts", h.ListAccountsHandler)
	})

	// Back-office surface, reachable only through the internal gateway.
	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireInternalAPIKey(cfg.AdminAPIKey))

		r.Get("/intents/{reference}", h.AdminGetIntentHandler)
		r.Get("/intents/{reference}/callbacks", h.AdminListCallbackLogsHandler)
		r.Get("/intents/by-provider/{providerTxID}", h.AdminGetIntentByProviderIDHandler)
		r.Post("/intents/{reference}/cancel", h.AdminCancelIntentHandler)
		r.Put("/intents/{reference}/notes", h.AdminUpdateNotesHandler)
	})

	return r
}
