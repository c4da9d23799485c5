package market

import (
	"context"
	"time"
)

// Store describes persistence operations required by the marketplace core.
// Mutations that must leave an audit trail take the entry as part of the
// same call so implementations can write both in one transaction; if the
// audit write fails the whole operation fails.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Listings. CreateListing persists the listing together with its
	// pending owner authorization.
	CreateListing(ctx context.Context, l *Listing, authz *OwnerAuthorization) error
	GetListing(ctx context.Context, id string) (Listing, error)
	ListListings(ctx context.Context, status ListingStatus) ([]Listing, error)
	ListListingsByUser(ctx context.Context, userID string) ([]Listing, error)
	UpdateListing(ctx context.Context, l *Listing) error
	SetListingStatus(ctx context.Context, id string, status ListingStatus) error
	DeleteListing(ctx context.Context, id string) error

	// Owner authorizations
	GetAuthorizationByTokenHash(ctx context.Context, hash string) (OwnerAuthorization, error)
	GetAuthorizationByListing(ctx context.Context, listingID string) (OwnerAuthorization, error)
	// RedeemAuthorization applies the terminal owner decision with a
	// conditional update (status must still be pending and used_at unset),
	// cascades the listing status and appends the audit entry atomically.
	// Returns false without side effects when the condition no longer holds.
	RedeemAuthorization(ctx context.Context, upd RedeemUpdate) (bool, error)

	// Applications
	CreateApplication(ctx context.Context, app *Application, entries []AuditLog) error
	GetApplication(ctx context.Context, id string) (Application, error)
	ListApplicationsByUser(ctx context.Context, userID string) ([]Application, error)
	ListApplicationsByListing(ctx context.Context, listingID string) ([]Application, error)
	ListApplications(ctx context.Context) ([]Application, error)
	// TransitionApplication moves status from one of the allowed states to
	// the target, returning false when the row is not in an allowed state.
	TransitionApplication(ctx context.Context, id string, from []ApplicationStatus, to ApplicationStatus) (Application, bool, error)

	// Payments
	CreatePayment(ctx context.Context, p *Payment, entry AuditLog) error
	GetPaymentByApplication(ctx context.Context, applicationID string) (Payment, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	// ApplyPaymentCompletion performs the terminal reconciliation mutation:
	// complete the payment row (creating one if absent), flip the
	// application's payment status to paid and append the audit entry, all
	// conditional on the application still being approved and unpaid.
	// Returns false without side effects when already applied.
	ApplyPaymentCompletion(ctx context.Context, upd PaymentCompletion) (bool, error)

	// Messages
	CreateMessage(ctx context.Context, m *Message, entry AuditLog) error
	ListMessages(ctx context.Context, listingID, userA, userB string) ([]Message, error)
	ListUserMessages(ctx context.Context, userID string) ([]Message, error)
	MarkMessagesRead(ctx context.Context, recipientID, senderID string) error

	// Audit log (append-only)
	AppendAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, resourceType, resourceID string) ([]AuditLog, error)

	// Stats
	PlatformStats(ctx context.Context) (PlatformStats, error)
	DashboardStats(ctx context.Context, userID string) (DashboardStats, error)
}

// RedeemUpdate is the atomic owner-decision mutation.
type RedeemUpdate struct {
	AuthorizationID string
	Decision        AuthorizationStatus
	DecidedAt       time.Time
	IPHash          string
	ListingID       string
	ListingStatus   ListingStatus
	Audit           AuditLog
}

// PaymentCompletion is the atomic reconciliation mutation.
type PaymentCompletion struct {
	ApplicationID string
	PaymentID     string // empty when no pending payment row exists yet
	UserID        string
	Amount        int64
	Currency      string
	IntentID      string
	ChargeID      string // external event id, kept for redelivery detection
	CompletedAt   time.Time
	Audit         AuditLog
}
