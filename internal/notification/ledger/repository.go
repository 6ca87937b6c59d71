// Package ledger provides the notification delivery ledger: one durable
// record per (lead, notification type) tracking every send attempt and its
// outcome. The (lead_id, notification_type) pair carries a unique index, so
// concurrent writers upsert into one logical record instead of racing
// lookup-then-create.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the delivery state of a ledger entry.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// NotificationType identifies the follow-up window an entry belongs to.
type NotificationType string

const (
	TypeOneHour       NotificationType = "ONE_HOUR"
	TypeThirtyMinutes NotificationType = "THIRTY_MINUTES"
)

// ErrNotFound is returned when no entry exists for a (lead, type) pair.
var ErrNotFound = errors.New("notification log not found")

// Entry is one delivery record.
type Entry struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	TelecallerID      *uuid.UUID
	TelecallerEmail   string
	FollowUpTime      *time.Time
	NotificationType  NotificationType
	Status            Status
	ScheduledSendTime *time.Time
	SentAt            *time.Time
	ErrorMessage      *string
	RetryCount        int
	CreatedAt         time.Time
}

// Stats aggregates ledger entries by status.
type Stats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Sent           int     `json:"sent"`
	Failed         int     `json:"failed"`
	SuccessPercent float64 `json:"successPercent"`
}

// Repository provides access to the notification_logs table.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new ledger repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, lead_id, telecaller_id, telecaller_email, follow_up_time,
	notification_type, status, scheduled_send_time, sent_at, error_message, retry_count, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var nType, status string
	err := row.Scan(&e.ID, &e.LeadID, &e.TelecallerID, &e.TelecallerEmail, &e.FollowUpTime,
		&nType, &status, &e.ScheduledSendTime, &e.SentAt, &e.ErrorMessage, &e.RetryCount, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.NotificationType = NotificationType(nType)
	e.Status = Status(status)
	return e, nil
}

// Get fetches the entry for a (lead, type) pair.
func (r *Repository) Get(ctx context.Context, leadID uuid.UUID, nType NotificationType) (Entry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM notification_logs
		 WHERE lead_id = $1 AND notification_type = $2`,
		leadID, string(nType))
	return scanEntry(row)
}

// SentParams describes a successful delivery to record.
type SentParams struct {
	LeadID          uuid.UUID
	TelecallerID    uuid.UUID
	TelecallerEmail string
	FollowUpTime    time.Time
	Type            NotificationType
	SentAt          time.Time
}

// MarkSent upserts the (lead, type) entry to SENT, clearing any prior error.
// SENT is terminal: a duplicate delivery attempt for the same pair lands on
// the same row and leaves it SENT.
func (r *Repository) MarkSent(ctx context.Context, p SentParams) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_logs
		     (lead_id, telecaller_id, telecaller_email, follow_up_time,
		      notification_type, status, scheduled_send_time, sent_at)
		 VALUES ($1, $2, $3, $4, $5, 'SENT', $6, $6)
		 ON CONFLICT (lead_id, notification_type) DO UPDATE
		 SET status = 'SENT', sent_at = EXCLUDED.sent_at,
		     telecaller_id = EXCLUDED.telecaller_id,
		     telecaller_email = EXCLUDED.telecaller_email,
		     error_message = NULL, updated_at = now()`,
		p.LeadID, p.TelecallerID, p.TelecallerEmail, p.FollowUpTime, string(p.Type), p.SentAt)
	return err
}

// FailedParams describes a failed delivery attempt to record.
type FailedParams struct {
	LeadID          uuid.UUID
	TelecallerID    *uuid.UUID
	TelecallerEmail string
	FollowUpTime    time.Time
	Type            NotificationType
	Reason          string
}

// MarkFailed upserts the (lead, type) entry to FAILED and increments its
// retry count. An entry already SENT is left untouched.
func (r *Repository) MarkFailed(ctx context.Context, p FailedParams) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_logs
		     (lead_id, telecaller_id, telecaller_email, follow_up_time,
		      notification_type, status, scheduled_send_time, error_message, retry_count)
		 VALUES ($1, $2, $3, $4, $5, 'FAILED', now(), $6, 1)
		 ON CONFLICT (lead_id, notification_type) DO UPDATE
		 SET status = 'FAILED', error_message = EXCLUDED.error_message,
		     retry_count = notification_logs.retry_count + 1, updated_at = now()
		 WHERE notification_logs.status <> 'SENT'`,
		p.LeadID, p.TelecallerID, p.TelecallerEmail, p.FollowUpTime, string(p.Type), p.Reason)
	return err
}

// GetStats returns counts by status, optionally bounded by a creation-date
// range (zero times mean unbounded).
func (r *Repository) GetStats(ctx context.Context, from, to time.Time) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'PENDING'),
		        count(*) FILTER (WHERE status = 'SENT'),
		        count(*) FILTER (WHERE status = 'FAILED')
		 FROM notification_logs
		 WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at <= $2)`,
		nullableTime(from), nullableTime(to)).
		Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return Stats{}, err
	}

	if stats.Total > 0 {
		stats.SuccessPercent = float64(stats.Sent) / float64(stats.Total) * 100
	}
	return stats, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
