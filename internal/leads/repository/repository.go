// Package repository provides data access for the lead store.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// Status is the lead lifecycle state.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusDropped   Status = "dropped"
)

// Lead is the lead-store record. AssignedTo is an optional reference into the
// telecaller service with no enforced referential integrity; a dangling value
// is a soft inconsistency, never a crash.
type Lead struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	Status         Status
	AssignedTo     *uuid.UUID
	NextFollowUp   *time.Time
	OrganizationID uuid.UUID
	Tags           []string
	Notes          string
	CreatedAt      time.Time
}

// Repository provides access to the leads table.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new lead repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, name, phone, status, assigned_to, next_follow_up, organization_id, tags, notes, created_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	var status string
	err := row.Scan(&lead.ID, &lead.Name, &lead.Phone, &status, &lead.AssignedTo,
		&lead.NextFollowUp, &lead.OrganizationID, &lead.Tags, &lead.Notes, &lead.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	lead.Status = Status(status)
	return lead, nil
}

// Create inserts a new lead.
func (r *Repository) Create(ctx context.Context, lead Lead) (Lead, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO leads (name, phone, status, next_follow_up, organization_id, tags, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+leadColumns,
		lead.Name, lead.Phone, string(lead.Status), lead.NextFollowUp,
		lead.OrganizationID, lead.Tags, lead.Notes)
	return scanLead(row)
}

// GetByID fetches a single lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// FilterExisting returns the subset of ids that exist in the lead store.
func (r *Repository) FilterExisting(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM leads WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// SetAssignedTo points a lead at a telecaller. The write is conditional on
// the value actually changing, making a retried reconciliation a no-op.
// Returns true when a row changed.
func (r *Repository) SetAssignedTo(ctx context.Context, leadID, telecallerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads
		 SET assigned_to = $2, updated_at = now()
		 WHERE id = $1 AND assigned_to IS DISTINCT FROM $2`,
		leadID, telecallerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// BulkSetAssignedTo points a batch of leads at one telecaller and returns the
// number of rows actually modified. Idempotent for the same (leads, telecaller)
// pair, so reconciliation retries converge.
func (r *Repository) BulkSetAssignedTo(ctx context.Context, leadIDs []uuid.UUID, telecallerID uuid.UUID) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE leads
		 SET assigned_to = $2, updated_at = now()
		 WHERE id = ANY($1::uuid[]) AND assigned_to IS DISTINCT FROM $2`,
		leadIDs, telecallerID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DueForFollowUp returns assigned leads whose next follow-up falls inside
// [start, end].
func (r *Repository) DueForFollowUp(ctx context.Context, start, end time.Time) ([]Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE assigned_to IS NOT NULL
		   AND next_follow_up IS NOT NULL
		   AND next_follow_up >= $1
		   AND next_follow_up <= $2
		 ORDER BY next_follow_up ASC`,
		start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, lead)
	}
	return results, rows.Err()
}

// Ping checks connectivity for health probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
