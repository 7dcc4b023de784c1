package history

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// Store is the persistence port for history entries.
type Store interface {
	List(ctx context.Context, orgID uuid.UUID, verticalID string, limit int, milestonesOnly bool) ([]models.CustomizationHistory, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CustomizationHistory, error)
	MarkMilestone(ctx context.Context, id uuid.UUID, name, notes string) (*models.CustomizationHistory, error)
	RetentionSummary(ctx context.Context, orgID uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.RetentionSummary, error)
	Cleanup(ctx context.Context, orgID uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.CleanupResult, error)
}

// Saver runs the save protocol on behalf of rollback: restoring a snapshot
// is a normal save of the snapshot's blocks, producing a new version.
type Saver interface {
	SaveBlocks(ctx context.Context, orgID uuid.UUID, verticalID string, userID uuid.UUID, cfg models.ConfigBlocks, description, note string) (*models.OrganizationCustomization, error)
}

// RetentionPolicy holds the cleanup thresholds.
type RetentionPolicy struct {
	KeepRecent int
	KeepDays   int
}

// Service lists, diffs, marks, and rolls back history snapshots, and
// enforces the retention policy.
type Service struct {
	store  Store
	saver  Saver
	policy RetentionPolicy
	logger *zap.Logger
}

// NewService creates a history service.
func NewService(store Store, saver Saver, policy RetentionPolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.KeepRecent <= 0 {
		policy.KeepRecent = 20
	}
	if policy.KeepDays <= 0 {
		policy.KeepDays = 90
	}
	return &Service{store: store, saver: saver, policy: policy, logger: logger}
}

// List returns history entries, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, verticalID string, limit int, milestonesOnly bool) ([]models.CustomizationHistory, error) {
	return s.store.List(ctx, orgID, verticalID, limit, milestonesOnly)
}

// Get returns one snapshot.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CustomizationHistory, error) {
	return s.store.GetByID(ctx, id)
}

// MarkMilestone flags a snapshot. Milestones are exempt from retention
// cleanup.
func (s *Service) MarkMilestone(ctx context.Context, id uuid.UUID, name, notes string) (*models.CustomizationHistory, error) {
	if name == "" {
		return nil, fmt.Errorf("milestone name required")
	}
	return s.store.MarkMilestone(ctx, id, name, notes)
}

// Rollback restores a snapshot by saving its config blocks as the new
// current state. It creates version N+1 and never mutates or deletes
// intervening history.
func (s *Service) Rollback(ctx context.Context, historyID, userID uuid.UUID) (*models.OrganizationCustomization, error) {
	snapshot, err := s.store.GetByID(ctx, historyID)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("Rolled back to version %d", snapshot.VersionNumber)
	saved, err := s.saver.SaveBlocks(ctx, snapshot.OrganizationID, snapshot.VerticalID, userID, snapshot.Config, description, "")
	if err != nil {
		return nil, fmt.Errorf("rollback save: %w", err)
	}
	s.logger.Info("customization rolled back",
		zap.String("organization_id", snapshot.OrganizationID.String()),
		zap.String("vertical_id", snapshot.VerticalID),
		zap.Int("from_version", snapshot.VersionNumber),
		zap.Int("new_version", saved.Version))
	return saved, nil
}

// BlockDiff summarizes changed keys within one config block.
type BlockDiff struct {
	Block   string   `json:"block"`
	Changed []string `json:"changed"`
}

// Diff compares two snapshots block by block, returning the keys whose
// values differ. Only blocks with changes appear. Both snapshots must
// belong to the given organization and vertical; snapshots outside that
// scope are reported as not found.
func (s *Service) Diff(ctx context.Context, orgID uuid.UUID, verticalID string, aID, bID uuid.UUID) ([]BlockDiff, error) {
	a, err := s.getScoped(ctx, orgID, verticalID, aID)
	if err != nil {
		return nil, err
	}
	b, err := s.getScoped(ctx, orgID, verticalID, bID)
	if err != nil {
		return nil, err
	}
	return DiffBlocks(a.Config, b.Config), nil
}

func (s *Service) getScoped(ctx context.Context, orgID uuid.UUID, verticalID string, id uuid.UUID) (*models.CustomizationHistory, error) {
	snapshot, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot.OrganizationID != orgID || snapshot.VerticalID != verticalID {
		return nil, ErrNotFound
	}
	return snapshot, nil
}

// DiffBlocks computes the per-block changed-key summary between two config
// snapshots.
func DiffBlocks(a, b models.ConfigBlocks) []BlockDiff {
	var out []BlockDiff
	for _, blk := range []struct {
		name string
		a, b any
	}{
		{"dashboard", a.Dashboard, b.Dashboard},
		{"navigation", a.Navigation, b.Navigation},
		{"branding", a.Branding, b.Branding},
		{"stats", a.Stats, b.Stats},
		{"department", a.Department, b.Department},
	} {
		changed := diffKeys(blk.a, blk.b)
		if len(changed) > 0 {
			out = append(out, BlockDiff{Block: blk.name, Changed: changed})
		}
	}
	return out
}

func diffKeys(a, b any) []string {
	am, bm := asMap(a), asMap(b)
	keys := make(map[string]bool, len(am)+len(bm))
	for k := range am {
		keys[k] = true
	}
	for k := range bm {
		keys[k] = true
	}
	var changed []string
	for k := range keys {
		if !reflect.DeepEqual(am[k], bm[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func asMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	m := make(map[string]any)
	_ = json.Unmarshal(raw, &m)
	return m
}

// RetentionSummary reports what the policy keeps for the organization.
func (s *Service) RetentionSummary(ctx context.Context, orgID uuid.UUID, verticalID string) ([]models.RetentionSummary, error) {
	return s.store.RetentionSummary(ctx, orgID, verticalID, s.policy.KeepRecent, s.policy.KeepDays)
}

// Cleanup deletes everything outside the retention sets and reports the
// per-vertical delete counts.
func (s *Service) Cleanup(ctx context.Context, orgID uuid.UUID, verticalID string) ([]models.CleanupResult, error) {
	results, err := s.store.Cleanup(ctx, orgID, verticalID, s.policy.KeepRecent, s.policy.KeepDays)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		s.logger.Info("history retention cleanup",
			zap.String("organization_id", orgID.String()),
			zap.String("vertical_id", r.VerticalID),
			zap.Int("deleted", r.Deleted))
	}
	return results, nil
}
