package pg

import (
	"context"
	"database/sql"
	"errors"

	"novy.market/internal/market"
)

const messageColumns = `id, listing_id, coalesce(application_id,''), sender_id,
	recipient_id, content, is_read, created_at`

func scanMessage(row interface{ Scan(...any) error }) (market.Message, error) {
	var m market.Message
	err := row.Scan(&m.ID, &m.ListingID, &m.ApplicationID, &m.SenderID,
		&m.RecipientID, &m.Content, &m.IsRead, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Message{}, market.ErrNotFound
	}
	return m, err
}

func (s *Store) CreateMessage(ctx context.Context, m *market.Message, entry market.AuditLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into messages(id, listing_id, application_id, sender_id, recipient_id, content, is_read, created_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8)
	`, m.ID, m.ListingID, m.ApplicationID, m.SenderID, m.RecipientID,
		m.Content, m.IsRead, m.CreatedAt); err != nil {
		return err
	}
	if err := insertAuditLog(ctx, tx, &entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListMessages(ctx context.Context, listingID, userA, userB string) ([]market.Message, error) {
	return s.queryMessages(ctx, `
		select `+messageColumns+` from messages
		where listing_id=$1
		  and ((sender_id=$2 and recipient_id=$3) or (sender_id=$3 and recipient_id=$2))
		order by created_at
	`, listingID, userA, userB)
}

func (s *Store) ListUserMessages(ctx context.Context, userID string) ([]market.Message, error) {
	return s.queryMessages(ctx, `
		select `+messageColumns+` from messages
		where sender_id=$1 or recipient_id=$1
		order by created_at desc
	`, userID)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]market.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkMessagesRead(ctx context.Context, recipientID, senderID string) error {
	_, err := s.db.ExecContext(ctx, `
		update messages set is_read=true
		where recipient_id=$1 and sender_id=$2 and is_read=false
	`, recipientID, senderID)
	return err
}
