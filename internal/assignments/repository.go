package assignments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// Repository handles department_section_assignments persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an assignments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByOrgVertical returns all assignment rows for an (organization, vertical)
// pair, ordered by section and display order.
func (r *Repository) ListByOrgVertical(ctx context.Context, orgID uuid.UUID, verticalID string) ([]models.SectionAssignment, error) {
	const q = `SELECT id, organization_id, vertical_id, department_id, section_id, display_order, is_visible, created_at, updated_at
		FROM department_section_assignments
		WHERE organization_id = $1 AND vertical_id = $2
		ORDER BY section_id, display_order, department_id`
	rows, err := r.pool.Query(ctx, q, orgID, verticalID)
	if err != nil {
		return nil, ClassifyStoreError(err)
	}
	defer rows.Close()
	var list []models.SectionAssignment
	for rows.Next() {
		var a models.SectionAssignment
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.VerticalID, &a.DepartmentID, &a.SectionID, &a.DisplayOrder, &a.IsVisible, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyStoreError(err)
	}
	return list, nil
}

// Upsert creates or updates the assignment row for a department. Rows are
// created implicitly on the first move or visibility toggle.
func (r *Repository) Upsert(ctx context.Context, orgID uuid.UUID, verticalID, departmentID string, section models.SectionID, displayOrder int, visible bool) error {
	const q = `INSERT INTO department_section_assignments
		(organization_id, vertical_id, department_id, section_id, display_order, is_visible)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, vertical_id, department_id)
		DO UPDATE SET section_id = EXCLUDED.section_id,
			display_order = EXCLUDED.display_order,
			is_visible = EXCLUDED.is_visible,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, orgID, verticalID, departmentID, section, displayOrder, visible)
	return ClassifyStoreError(err)
}

// Delete removes one department's assignment row, returning it to its
// registry defaults.
func (r *Repository) Delete(ctx context.Context, orgID uuid.UUID, verticalID, departmentID string) error {
	const q = `DELETE FROM department_section_assignments
		WHERE organization_id = $1 AND vertical_id = $2 AND department_id = $3`
	_, err := r.pool.Exec(ctx, q, orgID, verticalID, departmentID)
	return ClassifyStoreError(err)
}

// DeleteAllForOrgVertical bulk-deletes all assignment rows for the pair.
// Used by reset-to-defaults only.
func (r *Repository) DeleteAllForOrgVertical(ctx context.Context, orgID uuid.UUID, verticalID string) (int, error) {
	const q = `DELETE FROM department_section_assignments
		WHERE organization_id = $1 AND vertical_id = $2`
	tag, err := r.pool.Exec(ctx, q, orgID, verticalID)
	if err != nil {
		return 0, ClassifyStoreError(err)
	}
	return int(tag.RowsAffected()), nil
}
