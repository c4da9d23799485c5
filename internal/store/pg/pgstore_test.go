package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"novy.market/internal/market"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestRedeemAuthorizationAppliesOnce(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	upd := market.RedeemUpdate{
		AuthorizationID: "auth-1",
		Decision:        market.AuthorizationApproved,
		DecidedAt:       now,
		IPHash:          "hash",
		ListingID:       "listing-1",
		ListingStatus:   market.ListingActive,
		Audit: market.AuditLog{
			ID: "audit-1", Action: market.AuditOwnerApproval,
			ResourceType: "listing", ResourceID: "listing-1", CreatedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("update owner_authorizations").
		WithArgs("auth-1", string(market.AuthorizationApproved), now, now, nil, "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update listings set status").
		WithArgs("listing-1", string(market.ListingActive), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_logs").
		WithArgs("audit-1", "", string(market.AuditOwnerApproval), "listing", "listing-1",
			nil, "", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := s.RedeemAuthorization(context.Background(), upd)
	if err != nil {
		t.Fatalf("RedeemAuthorization: %v", err)
	}
	if !applied {
		t.Fatal("expected first redemption to apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedeemAuthorizationLosesRace(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	// Guard matches zero rows: no listing update, no audit entry, no commit
	// of any side effects.
	mock.ExpectBegin()
	mock.ExpectExec("update owner_authorizations").
		WithArgs("auth-1", string(market.AuthorizationRejected), now, nil, now, "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err := s.RedeemAuthorization(context.Background(), market.RedeemUpdate{
		AuthorizationID: "auth-1",
		Decision:        market.AuthorizationRejected,
		DecidedAt:       now,
		ListingID:       "listing-1",
		ListingStatus:   market.ListingCancelled,
	})
	if err != nil {
		t.Fatalf("RedeemAuthorization: %v", err)
	}
	if applied {
		t.Fatal("expected lost race to report not applied")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyPaymentCompletionIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	upd := market.PaymentCompletion{
		ApplicationID: "app-1",
		PaymentID:     "pay-1",
		UserID:        "user-1",
		Amount:        39900,
		Currency:      "usd",
		IntentID:      "pi_1",
		ChargeID:      "evt_1",
		CompletedAt:   now,
		Audit: market.AuditLog{
			ID: "audit-1", UserID: "user-1", Action: market.AuditPaymentCompleted,
			ResourceType: "application", ResourceID: "app-1", CreatedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("update applications").
		WithArgs("app-1", "pi_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update payments").
		WithArgs("pay-1", "pi_1", "evt_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_logs").
		WithArgs("audit-1", "user-1", string(market.AuditPaymentCompleted), "application", "app-1",
			nil, "", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := s.ApplyPaymentCompletion(context.Background(), upd)
	if err != nil {
		t.Fatalf("ApplyPaymentCompletion: %v", err)
	}
	if !applied {
		t.Fatal("expected first completion to apply")
	}

	// Replay: the paid guard matches nothing and everything rolls back.
	mock.ExpectBegin()
	mock.ExpectExec("update applications").
		WithArgs("app-1", "pi_1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err = s.ApplyPaymentCompletion(context.Background(), upd)
	if err != nil {
		t.Fatalf("ApplyPaymentCompletion replay: %v", err)
	}
	if applied {
		t.Fatal("expected replay to be a no-op")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateListingRollsBackOnAuthzFailure(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	l := market.Listing{ID: "listing-1", UserID: "user-1", Status: market.ListingPendingAuth,
		Type: market.ListingResidential, CreatedAt: now, UpdatedAt: now}
	authz := market.OwnerAuthorization{ID: "auth-1", ListingID: "listing-1",
		TokenHash: "hash", OwnerEmail: "owner@example.com",
		Status: market.AuthorizationPending, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("insert into listings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into owner_authorizations").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if err := s.CreateListing(context.Background(), &l, &authz); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetListingNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select .* from listings where id=").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetListing(context.Background(), "missing")
	if !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
