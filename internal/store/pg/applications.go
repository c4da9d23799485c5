package pg

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"novy.market/internal/market"
)

const applicationColumns = `id, listing_id, applicant_id, status, payment_status,
	cover_letter, move_in_date, coalesce(payment_intent_id,''),
	tos_accepted_at, disclaimer_accepted_at, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (market.Application, error) {
	var a market.Application
	var moveIn, tos, disclaimer sql.NullTime
	err := row.Scan(&a.ID, &a.ListingID, &a.ApplicantID, &a.Status, &a.PaymentStatus,
		&a.CoverLetter, &moveIn, &a.PaymentIntentID, &tos, &disclaimer,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Application{}, market.ErrNotFound
	}
	a.MoveInDate = timePtr(moveIn)
	a.TosAcceptedAt = timePtr(tos)
	a.DisclaimerAcceptedAt = timePtr(disclaimer)
	return a, err
}

// CreateApplication inserts the application and its audit entries in one
// transaction. The partial unique index on live applications turns a
// concurrent duplicate into ErrConflict.
func (s *Store) CreateApplication(ctx context.Context, app *market.Application, entries []market.AuditLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into applications(id, listing_id, applicant_id, status, payment_status,
			cover_letter, move_in_date, tos_accepted_at, disclaimer_accepted_at,
			created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, app.ID, app.ListingID, app.ApplicantID, app.Status, app.PaymentStatus,
		app.CoverLetter, nullTime(app.MoveInDate), nullTime(app.TosAcceptedAt),
		nullTime(app.DisclaimerAcceptedAt), app.CreatedAt, app.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return market.ErrConflict
		}
		return err
	}

	for i := range entries {
		if err := insertAuditLog(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetApplication(ctx context.Context, id string) (market.Application, error) {
	return scanApplication(s.db.QueryRowContext(ctx,
		`select `+applicationColumns+` from applications where id=$1`, id))
}

func (s *Store) ListApplicationsByUser(ctx context.Context, userID string) ([]market.Application, error) {
	return s.queryApplications(ctx,
		`select `+applicationColumns+` from applications where applicant_id=$1 order by created_at desc`, userID)
}

func (s *Store) ListApplicationsByListing(ctx context.Context, listingID string) ([]market.Application, error) {
	return s.queryApplications(ctx,
		`select `+applicationColumns+` from applications where listing_id=$1 order by created_at desc`, listingID)
}

func (s *Store) ListApplications(ctx context.Context) ([]market.Application, error) {
	return s.queryApplications(ctx,
		`select `+applicationColumns+` from applications order by created_at desc`)
}

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]market.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TransitionApplication moves status conditionally. The returning clause
// hands back the updated row; zero rows means the status guard failed.
func (s *Store) TransitionApplication(ctx context.Context, id string, from []market.ApplicationStatus, to market.ApplicationStatus) (market.Application, bool, error) {
	args := []any{id, to}
	placeholders := ""
	for i, st := range from {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "$" + strconv.Itoa(len(args)+1)
		args = append(args, st)
	}

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
		update applications
		set status=$2, updated_at=now()
		where id=$1 and status in (`+placeholders+`)
		returning `+applicationColumns,
		args...))
	if errors.Is(err, market.ErrNotFound) {
		// Distinguish a missing row from a failed guard.
		if _, getErr := s.GetApplication(ctx, id); getErr != nil {
			return market.Application{}, false, getErr
		}
		return market.Application{}, false, nil
	}
	if err != nil {
		return market.Application{}, false, err
	}
	return app, true, nil
}
