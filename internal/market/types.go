package market

import (
	"time"

	"novy.market/internal/ids"
)

// ListingStatus is the publication state of a listing. A listing only
// reaches active through an approved owner authorization.
type ListingStatus string

const (
	ListingDraft        ListingStatus = "draft"
	ListingPendingAuth  ListingStatus = "pending_authorization"
	ListingActive       ListingStatus = "active"
	ListingTransferred  ListingStatus = "transferred"
	ListingExpired      ListingStatus = "expired"
	ListingCancelled    ListingStatus = "cancelled"
)

// ListingType selects the platform fee tier.
type ListingType string

const (
	ListingResidential ListingType = "residential"
	ListingCommercial  ListingType = "commercial"
)

// Listing is a lease offered for transfer by its outgoing tenant.
// Rent is in minor currency units.
type Listing struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Status          ListingStatus `json:"status"`
	Type            ListingType   `json:"type"`
	Title           string        `json:"title"`
	Address         string        `json:"address"`
	City            string        `json:"city"`
	State           string        `json:"state"`
	ZipCode         string        `json:"zip_code"`
	Rent            int64         `json:"rent"`
	LeaseExpiration time.Time     `json:"lease_expiration"`
	Bedrooms        int           `json:"bedrooms,omitempty"`
	Bathrooms       int           `json:"bathrooms,omitempty"`
	SquareFootage   int           `json:"square_footage,omitempty"`
	Description     string        `json:"description,omitempty"`
	Amenities       string        `json:"amenities,omitempty"`
	OwnerEmail      string        `json:"owner_email"`
	OwnerName       string        `json:"owner_name,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AuthorizationStatus is the state of an owner approval request.
// pending is the only non-terminal state.
type AuthorizationStatus string

const (
	AuthorizationPending  AuthorizationStatus = "pending"
	AuthorizationApproved AuthorizationStatus = "approved"
	AuthorizationRejected AuthorizationStatus = "rejected"
)

// OwnerAuthorization is a single one-time owner approval request. Only the
// SHA-256 hash of the token is ever stored; a leaked row cannot be replayed.
type OwnerAuthorization struct {
	ID         string              `json:"id"`
	ListingID  string              `json:"listing_id"`
	TokenHash  string              `json:"-"`
	OwnerEmail string              `json:"owner_email"`
	Status     AuthorizationStatus `json:"status"`
	ApprovedAt *time.Time          `json:"approved_at,omitempty"`
	RejectedAt *time.Time          `json:"rejected_at,omitempty"`
	UsedAt     *time.Time          `json:"used_at,omitempty"`
	IPHash     string              `json:"-"`
	ExpiresAt  time.Time           `json:"expires_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ApplicationStatus is the review state of an application.
// rejected and withdrawn are terminal; approved admits payment.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

// Live reports whether the status counts toward the one-live-application
// limit per (listing, applicant) pair.
func (s ApplicationStatus) Live() bool {
	return s != ApplicationRejected && s != ApplicationWithdrawn
}

// PaymentStatus is the orthogonal payment dimension on an application.
// It moves pending -> paid exactly once, only from approved status, only
// through webhook reconciliation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Application is one applicant's bid to assume a listing.
type Application struct {
	ID                   string            `json:"id"`
	ListingID            string            `json:"listing_id"`
	ApplicantID          string            `json:"applicant_id"`
	Status               ApplicationStatus `json:"status"`
	PaymentStatus        PaymentStatus     `json:"payment_status"`
	CoverLetter          string            `json:"cover_letter,omitempty"`
	MoveInDate           *time.Time        `json:"move_in_date,omitempty"`
	PaymentIntentID      string            `json:"payment_intent_id,omitempty"`
	TosAcceptedAt        *time.Time        `json:"tos_accepted_at,omitempty"`
	DisclaimerAcceptedAt *time.Time        `json:"disclaimer_accepted_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// PaymentState is the lifecycle of a platform-fee charge attempt.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
)

// Payment is one platform-fee charge attempt, tied one-to-one with an
// application. At most one payment per application ever reaches completed.
type Payment struct {
	ID            string       `json:"id"`
	ApplicationID string       `json:"application_id"`
	UserID        string       `json:"user_id"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	IntentID      string       `json:"intent_id,omitempty"`
	ChargeID      string       `json:"charge_id,omitempty"`
	Status        PaymentState `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// Message is one directed communication on a listing. Creation is gated on
// the governing application's payment status.
type Message struct {
	ID            string    `json:"id"`
	ListingID     string    `json:"listing_id"`
	ApplicationID string    `json:"application_id,omitempty"`
	SenderID      string    `json:"sender_id"`
	RecipientID   string    `json:"recipient_id"`
	Content       string    `json:"content"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditAction enumerates the recorded state-changing actions.
type AuditAction string

const (
	AuditOwnerApproval        AuditAction = "owner_approval"
	AuditOwnerRejection       AuditAction = "owner_rejection"
	AuditPaymentInitiated     AuditAction = "payment_initiated"
	AuditPaymentCompleted     AuditAction = "payment_completed"
	AuditPaymentFailed        AuditAction = "payment_failed"
	AuditTosAccepted          AuditAction = "tos_accepted"
	AuditDisclaimerAccepted   AuditAction = "disclaimer_accepted"
	AuditMessageSent          AuditAction = "message_sent"
	AuditApplicationSubmitted AuditAction = "application_submitted"
)

// AuditLog is one append-only record of a discrete action. Entries are
// written in the same logical operation as the mutation they describe and
// are never updated or deleted.
type AuditLog struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id,omitempty"`
	Action       AuditAction       `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IPHash       string            `json:"-"`
	UserAgent    string            `json:"user_agent,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// User roles.
const (
	RoleTenant = "tenant"
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
)

// User is a marketplace account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor identifies who performed a request, for audit purposes. IP is hashed
// before it is persisted anywhere.
type Actor struct {
	UserID    string
	IPHash    string
	UserAgent string
}

// PlatformStats is the admin overview. Revenue is the sum of completed
// payments, in minor units.
type PlatformStats struct {
	TotalUsers        int   `json:"total_users"`
	TotalListings     int   `json:"total_listings"`
	ActiveListings    int   `json:"active_listings"`
	TotalApplications int   `json:"total_applications"`
	TotalPayments     int   `json:"total_payments"`
	Revenue           int64 `json:"revenue"`
}

// DashboardStats is the per-user overview.
type DashboardStats struct {
	ActiveListings      int `json:"active_listings"`
	PendingApplications int `json:"pending_applications"`
	UnreadMessages      int `json:"unread_messages"`
}

func newID() string { return ids.New() }
