package market

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"novy.market/internal/audit"
	"novy.market/internal/email"
	"novy.market/internal/obs"
	"novy.market/internal/payment"
)

// authorizationTTL bounds how long an owner authorization link stays valid.
const authorizationTTL = 7 * 24 * time.Hour

// Service implements the marketplace workflow: listing publication gated on
// owner authorization, the application/payment state machines, webhook
// reconciliation and the messaging gate.
type Service struct {
	store    Store
	checkout payment.CheckoutClient
	mailer   email.Sender
	baseURL  string
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithCheckout wires the payment processor client.
func WithCheckout(c payment.CheckoutClient) Option {
	return func(s *Service) { s.checkout = c }
}

// WithMailer wires the owner-authorization email collaborator.
func WithMailer(m email.Sender) Option {
	return func(s *Service) { s.mailer = m }
}

// WithBaseURL sets the public base URL used in authorization links.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the marketplace service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		baseURL: "http://localhost:8080",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenHash is the one-way hash under which authorization tokens are stored.
func TokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, TokenHash(raw), nil
}

// NewListing is the input for CreateListing.
type NewListing struct {
	UserID          string
	Type            ListingType
	Title           string
	Address         string
	City            string
	State           string
	ZipCode         string
	Rent            int64
	LeaseExpiration time.Time
	Bedrooms        int
	Bathrooms       int
	SquareFootage   int
	Description     string
	Amenities       string
	OwnerEmail      string
	OwnerName       string
	TenantName      string
}

func (in NewListing) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user is required", ErrValidation)
	}
	if in.Type != ListingResidential && in.Type != ListingCommercial {
		return fmt.Errorf("%w: unsupported listing type %q", ErrValidation, in.Type)
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Address) == "" {
		return fmt.Errorf("%w: title and address are required", ErrValidation)
	}
	if in.Rent <= 0 {
		return fmt.Errorf("%w: rent must be > 0", ErrValidation)
	}
	if in.LeaseExpiration.IsZero() {
		return fmt.Errorf("%w: lease expiration is required", ErrValidation)
	}
	if !strings.Contains(in.OwnerEmail, "@") {
		return fmt.Errorf("%w: valid owner email is required", ErrValidation)
	}
	return nil
}

// CreateListing creates a listing in pending_authorization, issues a
// one-time owner token and hands the raw token to the email collaborator.
// The raw token is never persisted and never returned to the caller; email
// delivery failure is logged but does not fail listing creation.
func (s *Service) CreateListing(ctx context.Context, in NewListing) (Listing, error) {
	if err := in.validate(); err != nil {
		return Listing{}, err
	}

	now := s.now().UTC()
	listing := Listing{
		ID:              newID(),
		UserID:          in.UserID,
		Status:          ListingPendingAuth,
		Type:            in.Type,
		Title:           strings.TrimSpace(in.Title),
		Address:         strings.TrimSpace(in.Address),
		City:            strings.TrimSpace(in.City),
		State:           strings.TrimSpace(in.State),
		ZipCode:         strings.TrimSpace(in.ZipCode),
		Rent:            in.Rent,
		LeaseExpiration: in.LeaseExpiration,
		Bedrooms:        in.Bedrooms,
		Bathrooms:       in.Bathrooms,
		SquareFootage:   in.SquareFootage,
		Description:     in.Description,
		Amenities:       in.Amenities,
		OwnerEmail:      strings.TrimSpace(strings.ToLower(in.OwnerEmail)),
		OwnerName:       strings.TrimSpace(in.OwnerName),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	rawToken, tokenHash, err := generateToken()
	if err != nil {
		return Listing{}, fmt.Errorf("generate token: %w", err)
	}
	authz := OwnerAuthorization{
		ID:         newID(),
		ListingID:  listing.ID,
		TokenHash:  tokenHash,
		OwnerEmail: listing.OwnerEmail,
		Status:     AuthorizationPending,
		ExpiresAt:  now.Add(authorizationTTL),
		CreatedAt:  now,
	}

	if err := s.store.CreateListing(ctx, &listing, &authz); err != nil {
		return Listing{}, err
	}

	if s.mailer != nil {
		mail := email.OwnerAuthorizationMail{
			To:              listing.OwnerEmail,
			OwnerName:       listing.OwnerName,
			TenantName:      in.TenantName,
			PropertyAddress: listing.Address + ", " + listing.City,
			AuthorizeURL:    s.baseURL + "/authorize/" + rawToken,
		}
		if err := s.mailer.SendOwnerAuthorization(ctx, mail); err != nil {
			obs.LogRequest(map[string]any{
				"level":      "error",
				"msg":        "owner authorization email failed",
				"listing_id": listing.ID,
				"error":      err.Error(),
			})
		}
	}

	return listing, nil
}

// TokenReview is what the owner decision page renders.
type TokenReview struct {
	Authorization OwnerAuthorization `json:"authorization"`
	Listing       Listing            `json:"listing"`
}

// ValidateToken resolves a raw token for safe re-display of a pending
// decision page. It never mutates state.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (TokenReview, error) {
	authz, err := s.lookupToken(ctx, rawToken)
	if err != nil {
		return TokenReview{}, err
	}
	listing, err := s.store.GetListing(ctx, authz.ListingID)
	if err != nil {
		return TokenReview{}, err
	}
	return TokenReview{Authorization: authz, Listing: listing}, nil
}

func (s *Service) lookupToken(ctx context.Context, rawToken string) (OwnerAuthorization, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return OwnerAuthorization{}, fmt.Errorf("%w: token is required", ErrValidation)
	}
	authz, err := s.store.GetAuthorizationByTokenHash(ctx, TokenHash(rawToken))
	if err != nil {
		return OwnerAuthorization{}, err
	}
	// Order matters: a used token reports AlreadyUsed even after expiry.
	if authz.UsedAt != nil {
		return OwnerAuthorization{}, ErrAlreadyUsed
	}
	if s.now().After(authz.ExpiresAt) {
		return OwnerAuthorization{}, ErrExpired
	}
	return authz, nil
}

// RedeemToken applies the owner's one-time decision. Approval activates the
// listing; rejection cancels it. The second redemption of the same token
// fails with ErrAlreadyUsed no matter the decision.
func (s *Service) RedeemToken(ctx context.Context, rawToken string, approve bool, actor Actor) (Listing, error) {
	authz, err := s.lookupToken(ctx, rawToken)
	if err != nil {
		return Listing{}, err
	}

	now := s.now().UTC()
	decision := AuthorizationRejected
	listingStatus := ListingCancelled
	action := AuditOwnerRejection
	if approve {
		decision = AuthorizationApproved
		listingStatus = ListingActive
		action = AuditOwnerApproval
	}

	upd := RedeemUpdate{
		AuthorizationID: authz.ID,
		Decision:        decision,
		DecidedAt:       now,
		IPHash:          actor.IPHash,
		ListingID:       authz.ListingID,
		ListingStatus:   listingStatus,
		Audit: AuditLog{
			ID:           newID(),
			Action:       action,
			ResourceType: "listing",
			ResourceID:   authz.ListingID,
			Metadata: map[string]string{
				"authorization_id": authz.ID,
				"owner_email":      authz.OwnerEmail,
			},
			IPHash:    actor.IPHash,
			UserAgent: actor.UserAgent,
			CreatedAt: now,
		},
	}

	applied, err := s.store.RedeemAuthorization(ctx, upd)
	if err != nil {
		return Listing{}, err
	}
	if !applied {
		// Lost the race against a concurrent redemption.
		return Listing{}, ErrAlreadyUsed
	}

	obs.TokensRedeemed.WithLabelValues(string(decision)).Inc()
	_ = audit.LogEvent(ctx, "owner.decision", map[string]any{
		"listing_id": authz.ListingID,
		"decision":   string(decision),
	})

	return s.store.GetListing(ctx, authz.ListingID)
}

// GetListing returns a listing by id.
func (s *Service) GetListing(ctx context.Context, id string) (Listing, error) {
	return s.store.GetListing(ctx, id)
}

// ListListings returns listings filtered by status; empty status means all.
func (s *Service) ListListings(ctx context.Context, status ListingStatus) ([]Listing, error) {
	return s.store.ListListings(ctx, status)
}

// ListListingsByUser returns the listings owned by a tenant.
func (s *Service) ListListingsByUser(ctx context.Context, userID string) ([]Listing, error) {
	return s.store.ListListingsByUser(ctx, userID)
}

// ListingUpdate carries the mutable descriptive fields of a listing.
type ListingUpdate struct {
	Title       *string
	Description *string
	Amenities   *string
	Rent        *int64
}

// UpdateListing lets the owning tenant edit descriptive fields. Status is
// never writable here; it belongs to the authorization state machine.
func (s *Service) UpdateListing(ctx context.Context, id, actorUserID string, upd ListingUpdate) (Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if listing.UserID != actorUserID {
		return Listing{}, fmt.Errorf("%w: not the listing owner", ErrForbidden)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return Listing{}, fmt.Errorf("%w: title is required", ErrValidation)
		}
		listing.Title = title
	}
	if upd.Description != nil {
		listing.Description = *upd.Description
	}
	if upd.Amenities != nil {
		listing.Amenities = *upd.Amenities
	}
	if upd.Rent != nil {
		if *upd.Rent <= 0 {
			return Listing{}, fmt.Errorf("%w: rent must be > 0", ErrValidation)
		}
		listing.Rent = *upd.Rent
	}
	listing.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateListing(ctx, &listing); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

// DeleteListing removes a listing; owner only.
func (s *Service) DeleteListing(ctx context.Context, id, actorUserID string) error {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if listing.UserID != actorUserID {
		return fmt.Errorf("%w: not the listing owner", ErrForbidden)
	}
	return s.store.DeleteListing(ctx, id)
}

// SetListingStatus is the administrative status override (transferred,
// expired). It deliberately refuses active: activation only ever happens
// through an approved owner authorization.
func (s *Service) SetListingStatus(ctx context.Context, id string, status ListingStatus) (Listing, error) {
	switch status {
	case ListingTransferred, ListingExpired, ListingCancelled:
	case ListingActive:
		return Listing{}, fmt.Errorf("%w: listings activate only via owner authorization", ErrForbidden)
	default:
		return Listing{}, fmt.Errorf("%w: unsupported status %q", ErrValidation, status)
	}
	if _, err := s.store.GetListing(ctx, id); err != nil {
		return Listing{}, err
	}
	if err := s.store.SetListingStatus(ctx, id, status); err != nil {
		return Listing{}, err
	}
	return s.store.GetListing(ctx, id)
}
