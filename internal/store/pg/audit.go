package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"novy.market/internal/market"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAuditLog writes one append-only entry. It runs inside the caller's
// transaction so the entry commits or rolls back with the mutation.
func insertAuditLog(ctx context.Context, db execer, entry *market.AuditLog) error {
	var meta any
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := db.ExecContext(ctx, `
		insert into audit_logs(id, user_id, action, resource_type, resource_id, metadata, ip_hash, user_agent, created_at)
		values ($1,nullif($2,''),$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9)
	`, entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		meta, entry.IPHash, entry.UserAgent, entry.CreatedAt)
	return err
}

func (s *Store) AppendAuditLog(ctx context.Context, entry *market.AuditLog) error {
	return insertAuditLog(ctx, s.db, entry)
}

func (s *Store) ListAuditLogs(ctx context.Context, resourceType, resourceID string) ([]market.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(user_id,''), action, resource_type, resource_id,
			metadata, coalesce(ip_hash,''), coalesce(user_agent,''), created_at
		from audit_logs
		where resource_type=$1 and resource_id=$2
		order by created_at
	`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.AuditLog
	for rows.Next() {
		var e market.AuditLog
		var meta []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &meta, &e.IPHash, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats

func (s *Store) PlatformStats(ctx context.Context) (market.PlatformStats, error) {
	var stats market.PlatformStats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from users),
			(select count(*) from listings),
			(select count(*) from listings where status='active'),
			(select count(*) from applications),
			(select count(*) from payments),
			(select coalesce(sum(amount),0) from payments where status='completed')
	`).Scan(&stats.TotalUsers, &stats.TotalListings, &stats.ActiveListings,
		&stats.TotalApplications, &stats.TotalPayments, &stats.Revenue)
	if errors.Is(err, sql.ErrNoRows) {
		return market.PlatformStats{}, nil
	}
	return stats, err
}

func (s *Store) DashboardStats(ctx context.Context, userID string) (market.DashboardStats, error) {
	var stats market.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from listings where user_id=$1 and status='active'),
			(select count(*) from applications a
				join listings l on l.id=a.listing_id
				where l.user_id=$1 and a.status='pending'),
			(select count(*) from messages where recipient_id=$1 and is_read=false)
	`, userID).Scan(&stats.ActiveListings, &stats.PendingApplications, &stats.UnreadMessages)
	if errors.Is(err, sql.ErrNoRows) {
		return market.DashboardStats{}, nil
	}
	return stats, err
}
