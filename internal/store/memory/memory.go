// Package memory provides a mutex-guarded in-memory Store used by tests and
// local development. Semantics mirror the Postgres implementation, including
// the conditional redeem and reconciliation updates.
package memory

import (
	"context"
	"sort"
	"sync"

	"novy.market/internal/ids"
	"novy.market/internal/market"
)

// Store is an in-memory market.Store.
type Store struct {
	mu sync.RWMutex

	users          map[string]market.User
	usersByEmail   map[string]string
	listings       map[string]market.Listing
	authorizations map[string]market.OwnerAuthorization
	authzByToken   map[string]string
	applications   map[string]market.Application
	payments       map[string]market.Payment
	paymentByApp   map[string]string
	messages       []market.Message
	auditLogs      []market.AuditLog
}

var _ market.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:          make(map[string]market.User),
		usersByEmail:   make(map[string]string),
		listings:       make(map[string]market.Listing),
		authorizations: make(map[string]market.OwnerAuthorization),
		authzByToken:   make(map[string]string),
		applications:   make(map[string]market.Application),
		payments:       make(map[string]market.Payment),
		paymentByApp:   make(map[string]string),
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, u *market.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[u.Email]; ok {
		return market.ErrConflict
	}
	s.users[u.ID] = *u
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return market.User{}, market.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return market.User{}, market.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context) ([]market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Listings

func (s *Store) CreateListing(_ context.Context, l *market.Listing, authz *market.OwnerAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authzByToken[authz.TokenHash]; ok {
		return market.ErrConflict
	}
	s.listings[l.ID] = *l
	s.authorizations[authz.ID] = *authz
	s.authzByToken[authz.TokenHash] = authz.ID
	return nil
}

func (s *Store) GetListing(_ context.Context, id string) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return market.Listing{}, market.ErrNotFound
	}
	return l, nil
}

func (s *Store) ListListings(_ context.Context, status market.ListingStatus) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Listing
	for _, l := range s.listings {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListListingsByUser(_ context.Context, userID string) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Listing
	for _, l := range s.listings {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateListing(_ context.Context, l *market.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; !ok {
		return market.ErrNotFound
	}
	s.listings[l.ID] = *l
	return nil
}

func (s *Store) SetListingStatus(_ context.Context, id string, status market.ListingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return market.ErrNotFound
	}
	l.Status = status
	s.listings[id] = l
	return nil
}

func (s *Store) DeleteListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return market.ErrNotFound
	}
	delete(s.listings, id)
	return nil
}

// Owner authorizations

func (s *Store) GetAuthorizationByTokenHash(_ context.Context, hash string) (market.OwnerAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.authzByToken[hash]
	if !ok {
		return market.OwnerAuthorization{}, market.ErrNotFound
	}
	return s.authorizations[id], nil
}

func (s *Store) GetAuthorizationByListing(_ context.Context, listingID string) (market.OwnerAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.authorizations {
		if a.ListingID == listingID {
			return a, nil
		}
	}
	return market.OwnerAuthorization{}, market.ErrNotFound
}

func (s *Store) RedeemAuthorization(_ context.Context, upd market.RedeemUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authorizations[upd.AuthorizationID]
	if !ok {
		return false, market.ErrNotFound
	}
	if a.Status != market.AuthorizationPending || a.UsedAt != nil {
		return false, nil
	}
	l, ok := s.listings[upd.ListingID]
	if !ok {
		return false, market.ErrNotFound
	}

	decidedAt := upd.DecidedAt
	a.Status = upd.Decision
	a.UsedAt = &decidedAt
	a.IPHash = upd.IPHash
	if upd.Decision == market.AuthorizationApproved {
		a.ApprovedAt = &decidedAt
	} else {
		a.RejectedAt = &decidedAt
	}
	s.authorizations[a.ID] = a

	l.Status = upd.ListingStatus
	l.UpdatedAt = decidedAt
	s.listings[l.ID] = l

	s.auditLogs = append(s.auditLogs, upd.Audit)
	return true, nil
}

// Applications

func (s *Store) CreateApplication(_ context.Context, app *market.Application, entries []market.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.applications {
		if existing.ListingID == app.ListingID &&
			existing.ApplicantID == app.ApplicantID &&
			existing.Status.Live() {
			return market.ErrConflict
		}
	}
	s.applications[app.ID] = *app
	s.auditLogs = append(s.auditLogs, entries...)
	return nil
}

func (s *Store) GetApplication(_ context.Context, id string) (market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return market.Application{}, market.ErrNotFound
	}
	return app, nil
}

func (s *Store) ListApplicationsByUser(_ context.Context, userID string) ([]market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Application
	for _, app := range s.applications {
		if app.ApplicantID == userID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListApplicationsByListing(_ context.Context, listingID string) ([]market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Application
	for _, app := range s.applications {
		if app.ListingID == listingID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListApplications(_ context.Context) ([]market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Application, 0, len(s.applications))
	for _, app := range s.applications {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) TransitionApplication(_ context.Context, id string, from []market.ApplicationStatus, to market.ApplicationStatus) (market.Application, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return market.Application{}, false, market.ErrNotFound
	}
	allowed := false
	for _, st := range from {
		if app.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return market.Application{}, false, nil
	}
	app.Status = to
	s.applications[id] = app
	return app, true, nil
}

// Payments

func (s *Store) CreatePayment(_ context.Context, p *market.Payment, entry market.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = *p
	s.paymentByApp[p.ApplicationID] = p.ID
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) GetPaymentByApplication(_ context.Context, applicationID string) (market.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.paymentByApp[applicationID]
	if !ok {
		return market.Payment{}, market.ErrNotFound
	}
	return s.payments[id], nil
}

func (s *Store) ListPayments(_ context.Context) ([]market.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ApplyPaymentCompletion(_ context.Context, upd market.PaymentCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[upd.ApplicationID]
	if !ok {
		return false, market.ErrNotFound
	}
	if app.Status != market.ApplicationApproved || app.PaymentStatus == market.PaymentPaid {
		return false, nil
	}

	completedAt := upd.CompletedAt
	if upd.PaymentID != "" {
		p, ok := s.payments[upd.PaymentID]
		if !ok {
			return false, market.ErrNotFound
		}
		if p.Status == market.PaymentStateCompleted {
			return false, nil
		}
		p.Status = market.PaymentStateCompleted
		p.IntentID = upd.IntentID
		p.ChargeID = upd.ChargeID
		p.CompletedAt = &completedAt
		s.payments[p.ID] = p
	} else {
		p := market.Payment{
			ID:            ids.New(),
			ApplicationID: upd.ApplicationID,
			UserID:        upd.UserID,
			Amount:        upd.Amount,
			Currency:      upd.Currency,
			IntentID:      upd.IntentID,
			ChargeID:      upd.ChargeID,
			Status:        market.PaymentStateCompleted,
			CreatedAt:     completedAt,
			CompletedAt:   &completedAt,
		}
		s.payments[p.ID] = p
		s.paymentByApp[p.ApplicationID] = p.ID
	}

	app.PaymentStatus = market.PaymentPaid
	app.PaymentIntentID = upd.IntentID
	app.UpdatedAt = completedAt
	s.applications[app.ID] = app

	s.auditLogs = append(s.auditLogs, upd.Audit)
	return true, nil
}

// Messages

func (s *Store) CreateMessage(_ context.Context, m *market.Message, entry market.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListMessages(_ context.Context, listingID, userA, userB string) ([]market.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Message
	for _, m := range s.messages {
		if m.ListingID != listingID {
			continue
		}
		if (m.SenderID == userA && m.RecipientID == userB) ||
			(m.SenderID == userB && m.RecipientID == userA) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListUserMessages(_ context.Context, userID string) ([]market.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Message
	for _, m := range s.messages {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkMessagesRead(_ context.Context, recipientID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].RecipientID == recipientID && s.messages[i].SenderID == senderID {
			s.messages[i].IsRead = true
		}
	}
	return nil
}

// Audit log

func (s *Store) AppendAuditLog(_ context.Context, entry *market.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, *entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, resourceType, resourceID string) ([]market.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.AuditLog
	for _, e := range s.auditLogs {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats

func (s *Store) PlatformStats(_ context.Context) (market.PlatformStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := market.PlatformStats{
		TotalUsers:        len(s.users),
		TotalListings:     len(s.listings),
		TotalApplications: len(s.applications),
		TotalPayments:     len(s.payments),
	}
	for _, l := range s.listings {
		if l.Status == market.ListingActive {
			stats.ActiveListings++
		}
	}
	for _, p := range s.payments {
		if p.Status == market.PaymentStateCompleted {
			stats.Revenue += p.Amount
		}
	}
	return stats, nil
}

func (s *Store) DashboardStats(_ context.Context, userID string) (market.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats market.DashboardStats
	for _, l := range s.listings {
		if l.UserID == userID && l.Status == market.ListingActive {
			stats.ActiveListings++
		}
	}
	for _, app := range s.applications {
		if app.Status != market.ApplicationPending {
			continue
		}
		if l, ok := s.listings[app.ListingID]; ok && l.UserID == userID {
			stats.PendingApplications++
		}
	}
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.IsRead {
			stats.UnreadMessages++
		}
	}
	return stats, nil
}
