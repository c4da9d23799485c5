package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"novy.market/internal/market"
	"novy.market/internal/obs"
	"novy.market/internal/payment"
)

func (a *API) createCheckout(w http.ResponseWriter, r *http.Request) {
	intent, err := a.svc.CreateCheckout(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// stripeWebhook verifies the delivery signature against the raw body before
// any decoding. Bad signatures and malformed payloads are 400s the sender
// will not retry forever; integrity violations and internal errors are 500s
// so the delivery is retried and never silently lost.
func (a *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "cannot read body")
		return
	}

	sig := r.Header.Get(payment.SignatureHeader)
	if err := payment.VerifySignature(body, sig, a.webhookSecret, payment.DefaultTolerance, time.Now()); err != nil {
		obs.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		writeError(w, r, http.StatusBadRequest, "signature verification failed")
		return
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		obs.WebhookEvents.WithLabelValues("unknown", "bad_payload").Inc()
		writeError(w, r, http.StatusBadRequest, "malformed payload")
		return
	}

	outcome, err := a.svc.Reconcile(r.Context(), ev)
	if err != nil {
		if errors.Is(err, market.ErrIntegrity) {
			obs.LogRequest(map[string]any{
				"level":      "error",
				"msg":        "webhook integrity violation",
				"event_id":   ev.ID,
				"error":      err.Error(),
				"request_id": RequestIDFromContext(r.Context()),
			})
		}
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"outcome":  outcome,
	})
}

func (a *API) adminPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.svc.ListPayments(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payments})
}
