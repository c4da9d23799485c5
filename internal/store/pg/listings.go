package pg

import (
	"context"
	"database/sql"
	"errors"

	"novy.market/internal/market"
)

const listingColumns = `id, user_id, status, type, title, address, city, state, zip_code,
	rent, lease_expiration, bedrooms, bathrooms, square_footage, description,
	amenities, owner_email, owner_name, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (market.Listing, error) {
	var l market.Listing
	err := row.Scan(&l.ID, &l.UserID, &l.Status, &l.Type, &l.Title, &l.Address,
		&l.City, &l.State, &l.ZipCode, &l.Rent, &l.LeaseExpiration,
		&l.Bedrooms, &l.Bathrooms, &l.SquareFootage, &l.Description,
		&l.Amenities, &l.OwnerEmail, &l.OwnerName, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Listing{}, market.ErrNotFound
	}
	return l, err
}

// CreateListing writes the listing and its pending owner authorization in
// one transaction so a listing can never exist without an approval path.
func (s *Store) CreateListing(ctx context.Context, l *market.Listing, authz *market.OwnerAuthorization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into listings(`+listingColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, l.ID, l.UserID, l.Status, l.Type, l.Title, l.Address, l.City, l.State,
		l.ZipCode, l.Rent, l.LeaseExpiration, l.Bedrooms, l.Bathrooms,
		l.SquareFootage, l.Description, l.Amenities, l.OwnerEmail, l.OwnerName,
		l.CreatedAt, l.UpdatedAt); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into owner_authorizations(id, listing_id, token_hash, owner_email, status, expires_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, authz.ID, authz.ListingID, authz.TokenHash, authz.OwnerEmail,
		authz.Status, authz.ExpiresAt, authz.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return market.ErrConflict
		}
		return err
	}

	return tx.Commit()
}

func (s *Store) GetListing(ctx context.Context, id string) (market.Listing, error) {
	return scanListing(s.db.QueryRowContext(ctx,
		`select `+listingColumns+` from listings where id=$1`, id))
}

func (s *Store) ListListings(ctx context.Context, status market.ListingStatus) ([]market.Listing, error) {
	query := `select ` + listingColumns + ` from listings order by created_at desc`
	args := []any{}
	if status != "" {
		query = `select ` + listingColumns + ` from listings where status=$1 order by created_at desc`
		args = append(args, status)
	}
	return s.queryListings(ctx, query, args...)
}

func (s *Store) ListListingsByUser(ctx context.Context, userID string) ([]market.Listing, error) {
	return s.queryListings(ctx,
		`select `+listingColumns+` from listings where user_id=$1 order by created_at desc`, userID)
}

func (s *Store) queryListings(ctx context.Context, query string, args ...any) ([]market.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpdateListing(ctx context.Context, l *market.Listing) error {
	res, err := s.db.ExecContext(ctx, `
		update listings
		set title=$2, description=$3, amenities=$4, rent=$5, updated_at=$6
		where id=$1
	`, l.ID, l.Title, l.Description, l.Amenities, l.Rent, l.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetListingStatus(ctx context.Context, id string, status market.ListingStatus) error {
	res, err := s.db.ExecContext(ctx, `
		update listings set status=$2, updated_at=now() where id=$1
	`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from listings where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return market.ErrNotFound
	}
	return nil
}

// Owner authorizations

const authzColumns = `id, listing_id, token_hash, owner_email, status,
	approved_at, rejected_at, used_at, coalesce(ip_hash,''), expires_at, created_at`

func scanAuthz(row interface{ Scan(...any) error }) (market.OwnerAuthorization, error) {
	var a market.OwnerAuthorization
	var approved, rejected, used sql.NullTime
	err := row.Scan(&a.ID, &a.ListingID, &a.TokenHash, &a.OwnerEmail, &a.Status,
		&approved, &rejected, &used, &a.IPHash, &a.ExpiresAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return market.OwnerAuthorization{}, market.ErrNotFound
	}
	a.ApprovedAt = timePtr(approved)
	a.RejectedAt = timePtr(rejected)
	a.UsedAt = timePtr(used)
	return a, err
}

func (s *Store) GetAuthorizationByTokenHash(ctx context.Context, hash string) (market.OwnerAuthorization, error) {
	return scanAuthz(s.db.QueryRowContext(ctx,
		`select `+authzColumns+` from owner_authorizations where token_hash=$1`, hash))
}

func (s *Store) GetAuthorizationByListing(ctx context.Context, listingID string) (market.OwnerAuthorization, error) {
	return scanAuthz(s.db.QueryRowContext(ctx,
		`select `+authzColumns+` from owner_authorizations where listing_id=$1`, listingID))
}

// RedeemAuthorization applies the owner decision with a conditional update.
// The where clause guarantees exactly-once semantics: whichever concurrent
// redemption matches the pending row first wins, the rest see zero rows.
func (s *Store) RedeemAuthorization(ctx context.Context, upd market.RedeemUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var approvedAt, rejectedAt any
	if upd.Decision == market.AuthorizationApproved {
		approvedAt = upd.DecidedAt
	} else {
		rejectedAt = upd.DecidedAt
	}

	res, err := tx.ExecContext(ctx, `
		update owner_authorizations
		set status=$2, used_at=$3, approved_at=$4, rejected_at=$5, ip_hash=$6
		where id=$1 and status='pending' and used_at is null
	`, upd.AuthorizationID, upd.Decision, upd.DecidedAt, approvedAt, rejectedAt, upd.IPHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		update listings set status=$2, updated_at=$3 where id=$1
	`, upd.ListingID, upd.ListingStatus, upd.DecidedAt); err != nil {
		return false, err
	}
	if err := insertAuditLog(ctx, tx, &upd.Audit); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
