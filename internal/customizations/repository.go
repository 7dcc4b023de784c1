package customizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// Repository handles organization_ui_customizations persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a customizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customizationColumns = `id, organization_id, vertical_id,
	dashboard_config, navigation_config, branding_config, stats_config, department_config,
	version, is_active, created_by, updated_by, created_at, updated_at`

// GetActive returns the active customization row for the pair, or nil when
// none exists.
func (r *Repository) GetActive(ctx context.Context, orgID uuid.UUID, verticalID string) (*models.OrganizationCustomization, error) {
	q := `SELECT ` + customizationColumns + `
		FROM organization_ui_customizations
		WHERE organization_id = $1 AND vertical_id = $2 AND is_active`
	row := r.pool.QueryRow(ctx, q, orgID, verticalID)
	c, err := scanCustomization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// SaveParams is one save of the five config blocks.
type SaveParams struct {
	OrganizationID uuid.UUID
	VerticalID     string
	Config         models.ConfigBlocks
	Description    string
	Note           string
	UserID         uuid.UUID
}

// Save runs the save protocol: update the active row in place with
// version+1 (or insert a fresh row when absent, resuming numbering after
// the last history version), then append a history snapshot of the
// post-update row tagged with the new version number.
// Both writes run in one transaction so a failed history append rolls the
// row update back rather than leaving history inconsistent.
func (r *Repository) Save(ctx context.Context, p SaveParams) (*models.OrganizationCustomization, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	blocks, err := marshalBlocks(p.Config)
	if err != nil {
		return nil, err
	}

	const updateQ = `UPDATE organization_ui_customizations SET
			dashboard_config = $3, navigation_config = $4, branding_config = $5,
			stats_config = $6, department_config = $7,
			version = version + 1, updated_by = $8, updated_at = NOW()
		WHERE organization_id = $1 AND vertical_id = $2 AND is_active
		RETURNING ` + customizationColumns
	row := tx.QueryRow(ctx, updateQ, p.OrganizationID, p.VerticalID,
		blocks[0], blocks[1], blocks[2], blocks[3], blocks[4], p.UserID)
	c, err := scanCustomization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// deactivated rows keep their history, so the fresh row continues
		// the version sequence instead of restarting at 1
		const insertQ = `INSERT INTO organization_ui_customizations
				(organization_id, vertical_id, dashboard_config, navigation_config,
				 branding_config, stats_config, department_config, version, is_active, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7,
				(SELECT COALESCE(MAX(version_number), 0) + 1 FROM organization_customization_history
					WHERE organization_id = $1 AND vertical_id = $2),
				TRUE, $8, $8)
			RETURNING ` + customizationColumns
		row = tx.QueryRow(ctx, insertQ, p.OrganizationID, p.VerticalID,
			blocks[0], blocks[1], blocks[2], blocks[3], blocks[4], p.UserID)
		c, err = scanCustomization(row)
	}
	if err != nil {
		return nil, fmt.Errorf("save customization: %w", err)
	}

	const historyQ = `INSERT INTO organization_customization_history
			(customization_id, organization_id, vertical_id, version_number,
			 dashboard_config, navigation_config, branding_config, stats_config, department_config,
			 change_description, change_note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := tx.Exec(ctx, historyQ, c.ID, c.OrganizationID, c.VerticalID, c.Version,
		blocks[0], blocks[1], blocks[2], blocks[3], blocks[4],
		p.Description, p.Note, p.UserID); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// Deactivate clears the is_active flag without deleting the row. History
// stays intact.
func (r *Repository) Deactivate(ctx context.Context, orgID uuid.UUID, verticalID string) error {
	const q = `UPDATE organization_ui_customizations SET is_active = FALSE, updated_at = NOW()
		WHERE organization_id = $1 AND vertical_id = $2 AND is_active`
	_, err := r.pool.Exec(ctx, q, orgID, verticalID)
	return err
}

func marshalBlocks(c models.ConfigBlocks) ([5][]byte, error) {
	var out [5][]byte
	for i, v := range []any{c.Dashboard, c.Navigation, c.Branding, c.Stats, c.Department} {
		raw, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("marshal config block: %w", err)
		}
		out[i] = raw
	}
	return out, nil
}

func scanCustomization(row pgx.Row) (*models.OrganizationCustomization, error) {
	var c models.OrganizationCustomization
	var dashboard, navigation, branding, stats, department []byte
	err := row.Scan(&c.ID, &c.OrganizationID, &c.VerticalID,
		&dashboard, &navigation, &branding, &stats, &department,
		&c.Version, &c.IsActive, &c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalBlocks(&c.Config, dashboard, navigation, branding, stats, department); err != nil {
		return nil, err
	}
	return &c, nil
}

func unmarshalBlocks(out *models.ConfigBlocks, dashboard, navigation, branding, stats, department []byte) error {
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{dashboard, &out.Dashboard},
		{navigation, &out.Navigation},
		{branding, &out.Branding},
		{stats, &out.Stats},
		{department, &out.Department},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return fmt.Errorf("decode config block: %w", err)
		}
	}
	return nil
}
