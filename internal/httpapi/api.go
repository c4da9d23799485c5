// Package httpapi is the HTTP surface of the marketplace. Handlers decode
// and validate input, call the service layer and map its error taxonomy to
// status codes; no business rules live here.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"novy.market/internal/market"
	"novy.market/internal/obs"
)

// ReadyProbe reports process readiness (database reachability).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	router        chi.Router
	svc           *market.Service
	readyProbe    ReadyProbe
	webhookSecret string
	version       string
	rateBurst     int
	ratePerSec    int
}

// Option configures API.
type Option func(*API)

// WithRateLimit overrides the per-IP rate limit.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// New wires routes and middleware.
func New(svc *market.Service, rp ReadyProbe, webhookSecret, version string, opts ...Option) *API {
	a := &API{
		router:        chi.NewRouter(),
		svc:           svc,
		readyProbe:    rp,
		webhookSecret: webhookSecret,
		version:       version,
		rateBurst:     20,
		ratePerSec:    10,
	}
	for _, opt := range opts {
		opt(a)
	}

	r := a.router
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, 1<<20) })
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", a.register)
		r.Post("/auth/login", a.login)

		r.Get("/listings", a.listListings)
		r.Get("/listings/{id}", a.getListing)

		// Owner decision endpoints authenticate by possession of the
		// one-time token, not by session.
		r.Get("/authorize/{token}", a.validateToken)
		r.Post("/authorize/{token}", a.redeemToken)

		// Authenticated by signature, not by session.
		r.Post("/stripe/webhook", a.stripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/me", a.me)
			r.Get("/dashboard", a.dashboard)

			r.Post("/listings", a.createListing)
			r.Get("/my/listings", a.myListings)
			r.Patch("/listings/{id}", a.updateListing)
			r.Delete("/listings/{id}", a.deleteListing)
			r.Get("/listings/{id}/applications", a.listingApplications)

			r.Post("/applications", a.apply)
			r.Get("/my/applications", a.myApplications)
			r.Get("/applications/{id}", a.getApplication)
			r.Post("/applications/{id}/review", a.reviewApplication)
			r.Post("/applications/{id}/withdraw", a.withdrawApplication)
			r.Get("/applications/{id}/payment", a.applicationPayment)
			r.Post("/applications/{id}/checkout", a.createCheckout)

			r.Post("/messages", a.sendMessage)
			r.Get("/messages", a.inbox)
			r.Get("/listings/{id}/messages/{userID}", a.conversation)

			r.Route("/admin", func(r chi.Router) {
				r.Use(a.requireAdmin)
				r.Get("/stats", a.adminStats)
				r.Get("/users", a.adminUsers)
				r.Get("/applications", a.adminApplications)
				r.Get("/payments", a.adminPayments)
				r.Get("/audit/{resourceType}/{resourceID}", a.adminAuditTrail)
				r.Post("/listings/{id}/status", a.adminSetListingStatus)
			})
		})
	})

	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "novy-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
