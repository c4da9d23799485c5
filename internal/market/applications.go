package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"novy.market/internal/audit"
)

// NewApplication is the input for Apply.
type NewApplication struct {
	ListingID          string
	CoverLetter        string
	MoveInDate         *time.Time
	AcceptTos          bool
	AcceptedDisclaimer bool
}

// Apply submits an application against an active listing. Checks run in a
// fixed order: listing existence, listing state, self-application, consent,
// then the one-live-application limit. The application, its consent stamps
// and the audit entries land in one transaction.
func (s *Service) Apply(ctx context.Context, actor Actor, in NewApplication) (Application, error) {
	if strings.TrimSpace(in.ListingID) == "" {
		return Application{}, fmt.Errorf("%w: listing is required", ErrValidation)
	}

	listing, err := s.store.GetListing(ctx, in.ListingID)
	if err != nil {
		return Application{}, err
	}
	if listing.Status != ListingActive {
		return Application{}, fmt.Errorf("%w: listing is not accepting applications", ErrInvalidState)
	}
	if listing.UserID == actor.UserID {
		return Application{}, fmt.Errorf("%w: cannot apply to your own listing", ErrForbidden)
	}
	if !in.AcceptTos || !in.AcceptedDisclaimer {
		return Application{}, fmt.Errorf("%w: terms of service and disclaimer must be accepted", ErrValidation)
	}

	existing, err := s.store.ListApplicationsByUser(ctx, actor.UserID)
	if err != nil {
		return Application{}, err
	}
	for _, app := range existing {
		if app.ListingID == in.ListingID && app.Status.Live() {
			return Application{}, fmt.Errorf("%w: an application for this listing already exists", ErrConflict)
		}
	}

	now := s.now().UTC()
	app := Application{
		ID:                   newID(),
		ListingID:            in.ListingID,
		ApplicantID:          actor.UserID,
		Status:               ApplicationPending,
		PaymentStatus:        PaymentPending,
		CoverLetter:          in.CoverLetter,
		MoveInDate:           in.MoveInDate,
		TosAcceptedAt:        &now,
		DisclaimerAcceptedAt: &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	entries := []AuditLog{
		s.auditEntry(actor, AuditApplicationSubmitted, "application", app.ID, map[string]string{
			"listing_id": in.ListingID,
		}),
		s.auditEntry(actor, AuditTosAccepted, "application", app.ID, nil),
		s.auditEntry(actor, AuditDisclaimerAccepted, "application", app.ID, nil),
	}

	if err := s.store.CreateApplication(ctx, &app, entries); err != nil {
		return Application{}, err
	}

	_ = audit.LogEvent(ctx, "application.submitted", map[string]any{
		"application_id": app.ID,
		"listing_id":     app.ListingID,
	})
	return app, nil
}

// GetApplication returns an application visible to the applicant, the
// listing owner, or an admin; everyone else gets ErrForbidden.
func (s *Service) GetApplication(ctx context.Context, id string, actor Actor, isAdmin bool) (Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if isAdmin || app.ApplicantID == actor.UserID {
		return app, nil
	}
	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err != nil {
		return Application{}, err
	}
	if listing.UserID != actor.UserID {
		return Application{}, fmt.Errorf("%w: not a party to this application", ErrForbidden)
	}
	return app, nil
}

// ListMyApplications returns the applications the actor has submitted.
func (s *Service) ListMyApplications(ctx context.Context, userID string) ([]Application, error) {
	return s.store.ListApplicationsByUser(ctx, userID)
}

// ListListingApplications returns applications against a listing; only the
// listing owner may call it.
func (s *Service) ListListingApplications(ctx context.Context, listingID, actorUserID string) ([]Application, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.UserID != actorUserID {
		return nil, fmt.Errorf("%w: not the listing owner", ErrForbidden)
	}
	return s.store.ListApplicationsByListing(ctx, listingID)
}

// reviewTransitions maps a target review status to the statuses it may be
// reached from.
var reviewTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationUnderReview: {ApplicationPending},
	ApplicationApproved:    {ApplicationPending, ApplicationUnderReview},
	ApplicationRejected:    {ApplicationPending, ApplicationUnderReview},
}

// Review moves an application through the review state machine. Only the
// listing owner may review; payment status is untouched.
func (s *Service) Review(ctx context.Context, applicationID, actorUserID string, to ApplicationStatus) (Application, error) {
	from, ok := reviewTransitions[to]
	if !ok {
		return Application{}, fmt.Errorf("%w: unsupported review status %q", ErrValidation, to)
	}

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err != nil {
		return Application{}, err
	}
	if listing.UserID != actorUserID {
		return Application{}, fmt.Errorf("%w: only the listing owner may review", ErrForbidden)
	}

	updated, applied, err := s.store.TransitionApplication(ctx, applicationID, from, to)
	if err != nil {
		return Application{}, err
	}
	if !applied {
		return Application{}, fmt.Errorf("%w: cannot move %s application to %s", ErrInvalidState, app.Status, to)
	}
	return updated, nil
}

// Withdraw lets the applicant withdraw a non-terminal application. Paid
// applications cannot be withdrawn.
func (s *Service) Withdraw(ctx context.Context, applicationID, actorUserID string) (Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.ApplicantID != actorUserID {
		return Application{}, fmt.Errorf("%w: not your application", ErrForbidden)
	}
	if app.PaymentStatus == PaymentPaid {
		return Application{}, fmt.Errorf("%w: paid applications cannot be withdrawn", ErrInvalidState)
	}

	from := []ApplicationStatus{ApplicationPending, ApplicationUnderReview, ApplicationApproved}
	updated, applied, err := s.store.TransitionApplication(ctx, applicationID, from, ApplicationWithdrawn)
	if err != nil {
		return Application{}, err
	}
	if !applied {
		return Application{}, fmt.Errorf("%w: application is already %s", ErrInvalidState, app.Status)
	}
	return updated, nil
}

func (s *Service) auditEntry(actor Actor, action AuditAction, resourceType, resourceID string, meta map[string]string) AuditLog {
	return AuditLog{
		ID:           newID(),
		UserID:       actor.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		IPHash:       actor.IPHash,
		UserAgent:    actor.UserAgent,
		CreatedAt:    s.now().UTC(),
	}
}
