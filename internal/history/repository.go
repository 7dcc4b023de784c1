package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// ErrNotFound is returned when a history entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Repository handles organization_customization_history persistence.
// The table is append-only: inserts happen inside the save transaction
// (see customizations.Repository.Save); the only update ever applied here
// is setting milestone fields.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const historyColumns = `id, customization_id, organization_id, vertical_id, version_number,
	dashboard_config, navigation_config, branding_config, stats_config, department_config,
	change_description, change_note, is_milestone, milestone_name, milestone_notes,
	created_by, created_at`

// List returns history entries for the pair, newest first. limit <= 0 means
// no limit; milestonesOnly filters to flagged entries.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, verticalID string, limit int, milestonesOnly bool) ([]models.CustomizationHistory, error) {
	q := `SELECT ` + historyColumns + `
		FROM organization_customization_history
		WHERE organization_id = $1 AND vertical_id = $2`
	if milestonesOnly {
		q += ` AND is_milestone`
	}
	q += ` ORDER BY version_number DESC`
	args := []any{orgID, verticalID}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CustomizationHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *h)
	}
	return list, rows.Err()
}

// GetByID returns one history entry.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CustomizationHistory, error) {
	q := `SELECT ` + historyColumns + `
		FROM organization_customization_history WHERE id = $1`
	h, err := scanHistory(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return h, err
}

// MarkMilestone flags an existing snapshot as a milestone. Never creates a
// new version; the snapshot itself stays immutable.
func (r *Repository) MarkMilestone(ctx context.Context, id uuid.UUID, name, notes string) (*models.CustomizationHistory, error) {
	q := `UPDATE organization_customization_history
		SET is_milestone = TRUE, milestone_name = $2, milestone_notes = $3
		WHERE id = $1
		RETURNING ` + historyColumns
	h, err := scanHistory(r.pool.QueryRow(ctx, q, id, name, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return h, err
}

// retentionFilter ranks entries per vertical and marks which retention rule
// keeps each one.
const retentionCTE = `
	WITH ranked AS (
		SELECT id, vertical_id, is_milestone, created_at,
			ROW_NUMBER() OVER (PARTITION BY vertical_id ORDER BY version_number DESC) AS rn
		FROM organization_customization_history
		WHERE organization_id = $1 AND ($2 = '' OR vertical_id = $2)
	)`

// RetentionSummary counts, per vertical, how many entries each retention
// rule keeps and how many are eligible for cleanup.
func (r *Repository) RetentionSummary(ctx context.Context, orgID uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.RetentionSummary, error) {
	q := retentionCTE + `
		SELECT vertical_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE rn <= $3),
			COUNT(*) FILTER (WHERE created_at >= NOW() - make_interval(days => $4)),
			COUNT(*) FILTER (WHERE is_milestone),
			COUNT(*) FILTER (WHERE rn > $3
				AND created_at < NOW() - make_interval(days => $4)
				AND NOT is_milestone)
		FROM ranked
		GROUP BY vertical_id
		ORDER BY vertical_id`
	rows, err := r.pool.Query(ctx, q, orgID, verticalID, keepRecent, keepDays)
	if err != nil {
		return nil, fmt.Errorf("retention summary: %w", err)
	}
	defer rows.Close()
	var out []models.RetentionSummary
	for rows.Next() {
		var s models.RetentionSummary
		if err := rows.Scan(&s.VerticalID, &s.Total, &s.KeptRecent, &s.KeptByAge, &s.KeptMilestone, &s.Eligible); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes entries outside all three retention sets (newest N, last
// N days, milestones) and reports deletions per vertical.
func (r *Repository) Cleanup(ctx context.Context, orgID uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.CleanupResult, error) {
	q := retentionCTE + `
		DELETE FROM organization_customization_history h
		USING ranked
		WHERE h.id = ranked.id
			AND ranked.rn > $3
			AND ranked.created_at < NOW() - make_interval(days => $4)
			AND NOT ranked.is_milestone
		RETURNING h.vertical_id`
	rows, err := r.pool.Query(ctx, q, orgID, verticalID, keepRecent, keepDays)
	if err != nil {
		return nil, fmt.Errorf("retention cleanup: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	var order []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]models.CleanupResult, 0, len(order))
	for _, v := range order {
		out = append(out, models.CleanupResult{VerticalID: v, Deleted: counts[v]})
	}
	return out, nil
}

// ListOrganizationsWithHistory returns org ids having any history, for
// fleet-wide cleanup runs.
func (r *Repository) ListOrganizationsWithHistory(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT organization_id FROM organization_customization_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanHistory(row pgx.Row) (*models.CustomizationHistory, error) {
	var h models.CustomizationHistory
	var dashboard, navigation, branding, stats, department []byte
	err := row.Scan(&h.ID, &h.CustomizationID, &h.OrganizationID, &h.VerticalID, &h.VersionNumber,
		&dashboard, &navigation, &branding, &stats, &department,
		&h.ChangeDescription, &h.ChangeNote, &h.IsMilestone, &h.MilestoneName, &h.MilestoneNotes,
		&h.CreatedBy, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalHistoryBlocks(&h.Config, dashboard, navigation, branding, stats, department); err != nil {
		return nil, err
	}
	return &h, nil
}
