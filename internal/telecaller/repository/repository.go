// Package repository provides data access for the telecaller capacity store.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a telecaller does not exist.
var ErrNotFound = errors.New("telecaller not found")

// Telecaller is the capacity-store record. AssignedLeads is a set: the append
// path guarantees a lead id never repeats inside it.
type Telecaller struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	AssignedLeads   []uuid.UUID
	DailyCallTarget int
	OrganizationID  uuid.UUID
}

// Repository provides access to the telecallers table.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new telecaller repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const telecallerColumns = `id, name, email, phone, assigned_leads, daily_call_target, organization_id`

func scanTelecaller(row pgx.Row) (Telecaller, error) {
	var tc Telecaller
	err := row.Scan(&tc.ID, &tc.Name, &tc.Email, &tc.Phone, &tc.AssignedLeads, &tc.DailyCallTarget, &tc.OrganizationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Telecaller{}, ErrNotFound
	}
	if err != nil {
		return Telecaller{}, err
	}
	return tc, nil
}

// GetByID fetches a single telecaller.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Telecaller, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+telecallerColumns+` FROM telecallers WHERE id = $1`, id)
	return scanTelecaller(row)
}

// List returns every telecaller, ordered by id so capacity snapshots are
// deterministic.
func (r *Repository) List(ctx context.Context) ([]Telecaller, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+telecallerColumns+` FROM telecallers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Telecaller
	for rows.Next() {
		tc, err := scanTelecaller(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

// AppendAssignment adds a lead to a telecaller's assigned set. The update is
// conditional: it only fires when the lead is not already present, so the call
// is safe under concurrent direct edits and safe to retry. Returns true when a
// row changed, false when the lead was already in the set.
func (r *Repository) AppendAssignment(ctx context.Context, telecallerID, leadID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE telecallers
		 SET assigned_leads = array_append(assigned_leads, $2), updated_at = now()
		 WHERE id = $1 AND NOT ($2 = ANY(assigned_leads))`,
		telecallerID, leadID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AppendAssignments adds a batch of leads to one telecaller, skipping any
// already present. Runs inside a row-locking transaction so concurrent appends
// cannot duplicate a lead id. Returns the number of leads actually appended.
func (r *Repository) AppendAssignments(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current []uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT assigned_leads FROM telecallers WHERE id = $1 FOR UPDATE`,
		telecallerID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	existing := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		existing[id] = struct{}{}
	}

	appended := 0
	for _, leadID := range leadIDs {
		if _, dup := existing[leadID]; dup {
			continue
		}
		existing[leadID] = struct{}{}
		current = append(current, leadID)
		appended++
	}

	if appended > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE telecallers SET assigned_leads = $2, updated_at = now() WHERE id = $1`,
			telecallerID, current); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return appended, nil
}

// HasLead reports whether the lead already sits in the telecaller's set.
func (r *Repository) HasLead(ctx context.Context, telecallerID, leadID uuid.UUID) (bool, error) {
	var present bool
	err := r.pool.QueryRow(ctx,
		`SELECT $2 = ANY(assigned_leads) FROM telecallers WHERE id = $1`,
		telecallerID, leadID).Scan(&present)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return present, nil
}

// AssignedLeadIDs returns the lead ids currently assigned to a telecaller.
func (r *Repository) AssignedLeadIDs(ctx context.Context, telecallerID uuid.UUID) ([]uuid.UUID, error) {
	var leads []uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT assigned_leads FROM telecallers WHERE id = $1`, telecallerID).Scan(&leads)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// Ping checks connectivity for health probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
