package pg

import (
	"context"
	"database/sql"
	"errors"

	"novy.market/internal/ids"
	"novy.market/internal/market"
)

const paymentColumns = `id, application_id, user_id, amount, currency,
	coalesce(intent_id,''), coalesce(charge_id,''), status, created_at, completed_at`

func scanPayment(row interface{ Scan(...any) error }) (market.Payment, error) {
	var p market.Payment
	var completed sql.NullTime
	err := row.Scan(&p.ID, &p.ApplicationID, &p.UserID, &p.Amount, &p.Currency,
		&p.IntentID, &p.ChargeID, &p.Status, &p.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Payment{}, market.ErrNotFound
	}
	p.CompletedAt = timePtr(completed)
	return p, err
}

func (s *Store) CreatePayment(ctx context.Context, p *market.Payment, entry market.AuditLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into payments(id, application_id, user_id, amount, currency, intent_id, status, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8)
	`, p.ID, p.ApplicationID, p.UserID, p.Amount, p.Currency, p.IntentID,
		p.Status, p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return market.ErrConflict
		}
		return err
	}
	if err := insertAuditLog(ctx, tx, &entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetPaymentByApplication(ctx context.Context, applicationID string) (market.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		select `+paymentColumns+` from payments
		where application_id=$1
		order by created_at desc
		limit 1
	`, applicationID))
}

func (s *Store) ListPayments(ctx context.Context) ([]market.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+paymentColumns+` from payments order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyPaymentCompletion is the reconciliation write. The guard on the
// applications update is the source of truth for idempotency: once a row is
// paid, replays match zero rows and the transaction rolls back untouched.
func (s *Store) ApplyPaymentCompletion(ctx context.Context, upd market.PaymentCompletion) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update applications
		set payment_status='paid', payment_intent_id=$2, updated_at=$3
		where id=$1 and status='approved' and payment_status <> 'paid'
	`, upd.ApplicationID, upd.IntentID, upd.CompletedAt)
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

	if upd.PaymentID != "" {
		if _, err := tx.ExecContext(ctx, `
			update payments
			set status='completed', intent_id=$2, charge_id=nullif($3,''), completed_at=$4
			where id=$1 and status <> 'completed'
		`, upd.PaymentID, upd.IntentID, upd.ChargeID, upd.CompletedAt); err != nil {
			return false, err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			insert into payments(id, application_id, user_id, amount, currency, intent_id, charge_id, status, created_at, completed_at)
			values ($1,$2,$3,$4,$5,$6,nullif($7,''),'completed',$8,$8)
		`, ids.New(), upd.ApplicationID, upd.UserID, upd.Amount, upd.Currency,
			upd.IntentID, upd.ChargeID, upd.CompletedAt); err != nil {
			return false, err
		}
	}

	if err := insertAuditLog(ctx, tx, &upd.Audit); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
