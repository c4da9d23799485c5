package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"novy.market/internal/audit"
	"novy.market/internal/obs"
	"novy.market/internal/payment"
)

// CheckoutIntent is the redirect handle returned to the paying applicant.
type CheckoutIntent struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// CreateCheckout starts a platform-fee checkout for an approved application.
// Checks run in a fixed order: application existence, ownership, review
// status, payment status, listing activity, fee tier, then the processor
// call. A pending payment row and its audit entry are written before the
// caller is redirected.
func (s *Service) CreateCheckout(ctx context.Context, applicationID string, actor Actor) (CheckoutIntent, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return CheckoutIntent{}, err
	}
	if app.ApplicantID != actor.UserID {
		return CheckoutIntent{}, fmt.Errorf("%w: not your application", ErrForbidden)
	}
	if app.Status != ApplicationApproved {
		return CheckoutIntent{}, fmt.Errorf("%w: application is %s, payment requires approved", ErrInvalidState, app.Status)
	}
	if app.PaymentStatus == PaymentPaid {
		return CheckoutIntent{}, fmt.Errorf("%w: application is already paid", ErrConflict)
	}

	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err != nil {
		return CheckoutIntent{}, err
	}
	if listing.Status != ListingActive {
		return CheckoutIntent{}, fmt.Errorf("%w: listing is %s, payment requires an active listing", ErrForbidden, listing.Status)
	}
	amount, err := payment.FeeForListingType(string(listing.Type))
	if err != nil {
		return CheckoutIntent{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if s.checkout == nil {
		return CheckoutIntent{}, fmt.Errorf("%w: payment processor is not configured", ErrUpstream)
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, payment.CheckoutParams{
		ApplicationID: app.ID,
		UserID:        actor.UserID,
		ListingID:     listing.ID,
		ListingType:   string(listing.Type),
		Amount:        amount,
		Currency:      payment.FeeCurrency,
		SuccessURL:    s.baseURL + "/applications/" + app.ID + "?payment=success",
		CancelURL:     s.baseURL + "/applications/" + app.ID + "?payment=cancelled",
	})
	if err != nil {
		return CheckoutIntent{}, fmt.Errorf("%w: create checkout session: %v", ErrUpstream, err)
	}

	p := Payment{
		ID:            newID(),
		ApplicationID: app.ID,
		UserID:        actor.UserID,
		Amount:        amount,
		Currency:      payment.FeeCurrency,
		IntentID:      session.ID,
		Status:        PaymentStatePending,
		CreatedAt:     s.now().UTC(),
	}
	entry := s.auditEntry(actor, AuditPaymentInitiated, "application", app.ID, map[string]string{
		"listing_id": listing.ID,
		"amount":     strconv.FormatInt(amount, 10),
		"currency":   payment.FeeCurrency,
	})
	if err := s.store.CreatePayment(ctx, &p, entry); err != nil {
		return CheckoutIntent{}, err
	}

	return CheckoutIntent{
		SessionID: session.ID,
		URL:       session.URL,
		Amount:    amount,
		Currency:  payment.FeeCurrency,
	}, nil
}

// Reconcile outcomes, used as metric labels and log fields.
const (
	ReconcileCompleted = "completed"
	ReconcileDuplicate = "duplicate"
	ReconcileIgnored   = "ignored"
	ReconcileFailed    = "failed"
)

// Reconcile applies a verified payment-processor event. It is idempotent:
// replaying a delivery is acknowledged as a duplicate with no state change.
// The only hard failure is ErrIntegrity, raised when event metadata and the
// stored application disagree about the listing; that delivery must not be
// acknowledged.
func (s *Service) Reconcile(ctx context.Context, ev payment.Event) (string, error) {
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		return s.reconcileSucceeded(ctx, ev)
	case payment.EventPaymentFailed:
		return s.reconcileFailed(ctx, ev)
	default:
		obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileIgnored).Inc()
		return ReconcileIgnored, nil
	}
}

func (s *Service) reconcileSucceeded(ctx context.Context, ev payment.Event) (string, error) {
	if ev.ApplicationID == "" || ev.UserID == "" {
		obs.LogRequest(map[string]any{
			"level":    "warn",
			"msg":      "payment event without application metadata",
			"event_id": ev.ID,
		})
		obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileIgnored).Inc()
		return ReconcileIgnored, nil
	}

	app, err := s.store.GetApplication(ctx, ev.ApplicationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LogRequest(map[string]any{
				"level":          "warn",
				"msg":            "payment event for unknown application",
				"event_id":       ev.ID,
				"application_id": ev.ApplicationID,
			})
			obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileIgnored).Inc()
			return ReconcileIgnored, nil
		}
		return "", err
	}

	if ev.ListingID != "" && ev.ListingID != app.ListingID {
		obs.WebhookEvents.WithLabelValues(ev.Type, "integrity_violation").Inc()
		return "", fmt.Errorf("%w: event listing %s does not match application listing %s",
			ErrIntegrity, ev.ListingID, app.ListingID)
	}

	if app.PaymentStatus == PaymentPaid {
		obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileDuplicate).Inc()
		return ReconcileDuplicate, nil
	}
	if app.Status != ApplicationApproved {
		obs.LogRequest(map[string]any{
			"level":          "warn",
			"msg":            "payment event for non-approved application",
			"event_id":       ev.ID,
			"application_id": app.ID,
			"status":         string(app.Status),
		})
		obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileIgnored).Inc()
		return ReconcileIgnored, nil
	}

	now := s.now().UTC()
	upd := PaymentCompletion{
		ApplicationID: app.ID,
		UserID:        app.ApplicantID,
		Amount:        ev.Amount,
		Currency:      ev.Currency,
		IntentID:      ev.IntentID,
		ChargeID:      ev.ID,
		CompletedAt:   now,
		Audit: AuditLog{
			ID:           newID(),
			UserID:       app.ApplicantID,
			Action:       AuditPaymentCompleted,
			ResourceType: "application",
			ResourceID:   app.ID,
			Metadata: map[string]string{
				"event_id":  ev.ID,
				"intent_id": ev.IntentID,
				"amount":    strconv.FormatInt(ev.Amount, 10),
			},
			CreatedAt: now,
		},
	}
	if existing, err := s.store.GetPaymentByApplication(ctx, app.ID); err == nil {
		if existing.Status == PaymentStateCompleted {
			obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileDuplicate).Inc()
			return ReconcileDuplicate, nil
		}
		// Exact redelivery of an event already recorded on this payment.
		if existing.ChargeID != "" && existing.ChargeID == ev.ID {
			obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileDuplicate).Inc()
			return ReconcileDuplicate, nil
		}
		upd.PaymentID = existing.ID
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	applied, err := s.store.ApplyPaymentCompletion(ctx, upd)
	if err != nil {
		return "", err
	}
	if !applied {
		obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileDuplicate).Inc()
		return ReconcileDuplicate, nil
	}

	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err == nil {
		obs.PaymentsCompleted.WithLabelValues(string(listing.Type)).Inc()
	}
	obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileCompleted).Inc()
	_ = audit.LogEvent(ctx, "payment.completed", map[string]any{
		"application_id": app.ID,
		"intent_id":      ev.IntentID,
	})
	return ReconcileCompleted, nil
}

// reconcileFailed records the failure for audit. Payment status on the
// application stays pending so the applicant can retry.
func (s *Service) reconcileFailed(ctx context.Context, ev payment.Event) (string, error) {
	entry := AuditLog{
		ID:           newID(),
		UserID:       ev.UserID,
		Action:       AuditPaymentFailed,
		ResourceType: "application",
		ResourceID:   ev.ApplicationID,
		Metadata: map[string]string{
			"event_id":  ev.ID,
			"intent_id": ev.IntentID,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendAuditLog(ctx, &entry); err != nil {
		return "", err
	}
	obs.WebhookEvents.WithLabelValues(ev.Type, ReconcileFailed).Inc()
	return ReconcileFailed, nil
}

// GetPaymentByApplication exposes the payment row for an application.
func (s *Service) GetPaymentByApplication(ctx context.Context, applicationID string) (Payment, error) {
	return s.store.GetPaymentByApplication(ctx, applicationID)
}

// ListPayments returns all payments (admin).
func (s *Service) ListPayments(ctx context.Context) ([]Payment, error) {
	return s.store.ListPayments(ctx)
}
