package customizations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/merger"
	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

// ErrNothingToSave is returned when a save arrives with no draft changes.
var ErrNothingToSave = errors.New("no draft changes to save")

// ActiveStore is the persistence port for active customization rows.
type ActiveStore interface {
	GetActive(ctx context.Context, orgID uuid.UUID, verticalID string) (*models.OrganizationCustomization, error)
	Save(ctx context.Context, p SaveParams) (*models.OrganizationCustomization, error)
	Deactivate(ctx context.Context, orgID uuid.UUID, verticalID string) error
}

// DraftCache is the session draft cache port.
type DraftCache interface {
	Get(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*models.CustomizationDraft, error)
	Put(ctx context.Context, d *models.CustomizationDraft) error
	Delete(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) error
}

// Service implements the draft/save protocol over the store and cache.
type Service struct {
	store  ActiveStore
	drafts DraftCache
	reg    *registry.Registry
	logger *zap.Logger
}

// NewService creates a customization service.
func NewService(store ActiveStore, drafts DraftCache, reg *registry.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, drafts: drafts, reg: reg, logger: logger}
}

// DefaultBlocks returns the vertical's base config: what every tenant sees
// before any customization.
func DefaultBlocks(v *registry.Vertical) models.ConfigBlocks {
	labels := make(map[string]string, len(models.Sections))
	for _, s := range models.Sections {
		labels[string(s)] = v.SectionLabel(s)
	}
	return models.ConfigBlocks{
		Dashboard: models.DashboardConfig{
			Title:          "Dashboard",
			Subtitle:       "Welcome back",
			WelcomeMessage: fmt.Sprintf("Here is what's happening across your %s organization.", v.Name),
		},
		Navigation: models.NavigationConfig{SectionLabels: labels},
		Branding: models.BrandingConfig{
			PrimaryColor:   "#1d4ed8",
			SecondaryColor: "#64748b",
			AccentColor:    "#f59e0b",
		},
		Stats: models.StatsConfig{CardLabels: map[string]string{
			"members":   "Members",
			"documents": "Documents",
			"activity":  "Recent Activity",
			"storage":   "Storage Used",
		}},
	}
}

// Effective layers the active customization (if any) over the vertical
// defaults.
func (s *Service) Effective(ctx context.Context, orgID uuid.UUID, verticalID string) (models.ConfigBlocks, *models.OrganizationCustomization, error) {
	v, err := s.reg.Get(verticalID)
	if err != nil {
		return models.ConfigBlocks{}, nil, err
	}
	base := DefaultBlocks(v)
	active, err := s.store.GetActive(ctx, orgID, verticalID)
	if err != nil {
		return models.ConfigBlocks{}, nil, err
	}
	if active == nil {
		return base, nil, nil
	}
	merged, err := merger.MergeBlocks(base, active.Config)
	if err != nil {
		return models.ConfigBlocks{}, nil, err
	}
	return merged, active, nil
}

// GetDraft returns the session's draft, synthesizing a clean one from the
// active row (or an empty config) when nothing is cached. Synthesized
// drafts are not persisted until the first patch.
func (s *Service) GetDraft(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*models.CustomizationDraft, error) {
	if !s.reg.Has(verticalID) {
		return nil, fmt.Errorf("unknown vertical %q", verticalID)
	}
	draft, err := s.drafts.Get(ctx, orgID, verticalID, sessionID)
	if err != nil {
		s.logger.Warn("draft cache read failed, starting clean", zap.Error(err))
	}
	if draft != nil {
		return draft, nil
	}
	d := &models.CustomizationDraft{
		OrganizationID: orgID,
		VerticalID:     verticalID,
		SessionID:      sessionID,
		UpdatedAt:      time.Now(),
	}
	active, err := s.store.GetActive(ctx, orgID, verticalID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		d.Config = active.Config
		d.BaseVersion = active.Version
		d.LastSaved = &active.UpdatedAt
	}
	return d, nil
}

// BlockPatch carries per-block partial updates. Absent blocks are left
// untouched; present blocks are field-merged onto the draft.
type BlockPatch struct {
	Dashboard  json.RawMessage `json:"dashboard,omitempty"`
	Navigation json.RawMessage `json:"navigation,omitempty"`
	Branding   json.RawMessage `json:"branding,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Department json.RawMessage `json:"department,omitempty"`
}

// PatchDraft validates and applies a block patch, marking the draft dirty
// and refreshing its cache entry.
func (s *Service) PatchDraft(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID, patch BlockPatch) (*models.CustomizationDraft, error) {
	draft, err := s.GetDraft(ctx, orgID, verticalID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := applyBlockPatch("dashboard", patch.Dashboard, &draft.Config.Dashboard); err != nil {
		return nil, err
	}
	if err := applyBlockPatch("navigation", patch.Navigation, &draft.Config.Navigation); err != nil {
		return nil, err
	}
	if err := applyBlockPatch("branding", patch.Branding, &draft.Config.Branding); err != nil {
		return nil, err
	}
	if err := applyBlockPatch("stats", patch.Stats, &draft.Config.Stats); err != nil {
		return nil, err
	}
	if err := applyBlockPatch("department", patch.Department, &draft.Config.Department); err != nil {
		return nil, err
	}
	draft.HasChanges = true
	draft.UpdatedAt = time.Now()
	if err := s.drafts.Put(ctx, draft); err != nil {
		// cache is a crash-recovery aid only; the caller still gets the draft
		s.logger.Warn("draft cache write failed", zap.Error(err))
	}
	return draft, nil
}

// applyBlockPatch strict-decodes raw into the block's type (rejecting
// unknown keys at the store boundary), then field-merges it onto dst.
// A nil raw leaves dst untouched.
func applyBlockPatch[T any](name string, raw json.RawMessage, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	var probe T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&probe); err != nil {
		return fmt.Errorf("invalid %s config: %w", name, err)
	}
	if err := merger.MergeStruct(*dst, probe, dst); err != nil {
		return fmt.Errorf("merge %s config: %w", name, err)
	}
	return nil
}

// SetLogo records an uploaded logo on the session draft's branding block.
// Returns the previous object key so the caller can clean it up.
func (s *Service) SetLogo(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID, logoURL, logoKey string) (*models.CustomizationDraft, string, error) {
	draft, err := s.GetDraft(ctx, orgID, verticalID, sessionID)
	if err != nil {
		return nil, "", err
	}
	oldKey := draft.Config.Branding.LogoKey
	draft.Config.Branding.LogoURL = logoURL
	draft.Config.Branding.LogoKey = logoKey
	draft.HasChanges = true
	draft.UpdatedAt = time.Now()
	if err := s.drafts.Put(ctx, draft); err != nil {
		s.logger.Warn("draft cache write failed", zap.Error(err))
	}
	return draft, oldKey, nil
}

// ClearLogo removes the logo from the session draft's branding block.
// The zero-value-skipping field merge cannot express a clear, so this is
// a dedicated operation. Returns the removed object key.
func (s *Service) ClearLogo(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*models.CustomizationDraft, string, error) {
	draft, err := s.GetDraft(ctx, orgID, verticalID, sessionID)
	if err != nil {
		return nil, "", err
	}
	oldKey := draft.Config.Branding.LogoKey
	draft.Config.Branding.LogoURL = ""
	draft.Config.Branding.LogoKey = ""
	draft.HasChanges = true
	draft.UpdatedAt = time.Now()
	if err := s.drafts.Put(ctx, draft); err != nil {
		s.logger.Warn("draft cache write failed", zap.Error(err))
	}
	return draft, oldKey, nil
}

// DiscardDraft drops the session's draft.
func (s *Service) DiscardDraft(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) error {
	return s.drafts.Delete(ctx, orgID, verticalID, sessionID)
}

// Save persists the session draft through the save protocol and clears the
// draft cache on success.
func (s *Service) Save(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID, userID uuid.UUID, description, note string) (*models.OrganizationCustomization, error) {
	draft, err := s.drafts.Get(ctx, orgID, verticalID, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil || !draft.HasChanges {
		return nil, ErrNothingToSave
	}
	saved, err := s.store.Save(ctx, SaveParams{
		OrganizationID: orgID,
		VerticalID:     verticalID,
		Config:         draft.Config,
		Description:    description,
		Note:           note,
		UserID:         userID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.drafts.Delete(ctx, orgID, verticalID, sessionID); err != nil {
		s.logger.Warn("draft cache clear failed after save", zap.Error(err))
	}
	return saved, nil
}

// ResetToDefaults deactivates the active customization so the vertical
// defaults apply again, and drops the caller's draft. History survives;
// the next save continues the version sequence.
func (s *Service) ResetToDefaults(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) error {
	if !s.reg.Has(verticalID) {
		return fmt.Errorf("unknown vertical %q", verticalID)
	}
	if err := s.store.Deactivate(ctx, orgID, verticalID); err != nil {
		return fmt.Errorf("deactivate customization: %w", err)
	}
	if err := s.drafts.Delete(ctx, orgID, verticalID, sessionID); err != nil {
		s.logger.Warn("draft cache clear failed after reset", zap.Error(err))
	}
	s.logger.Info("customization reset to defaults",
		zap.String("organization_id", orgID.String()),
		zap.String("vertical_id", verticalID))
	return nil
}

// SaveBlocks persists config blocks directly, bypassing the draft path.
// Used by rollback, which restores a snapshot as the new current state.
func (s *Service) SaveBlocks(ctx context.Context, orgID uuid.UUID, verticalID string, userID uuid.UUID, cfg models.ConfigBlocks, description, note string) (*models.OrganizationCustomization, error) {
	return s.store.Save(ctx, SaveParams{
		OrganizationID: orgID,
		VerticalID:     verticalID,
		Config:         cfg,
		Description:    description,
		Note:           note,
		UserID:         userID,
	})
}
