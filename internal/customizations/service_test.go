package customizations

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

type pairKey struct {
	orgID      uuid.UUID
	verticalID string
}

// fakeActiveStore mimics the save protocol: one active row per pair, with
// version incremented on every save and a history snapshot appended.
type fakeActiveStore struct {
	mu      sync.Mutex
	active  map[pairKey]*models.OrganizationCustomization
	history map[pairKey][]models.CustomizationHistory
}

func newFakeActiveStore() *fakeActiveStore {
	return &fakeActiveStore{
		active:  make(map[pairKey]*models.OrganizationCustomization),
		history: make(map[pairKey][]models.CustomizationHistory),
	}
}

func (s *fakeActiveStore) GetActive(_ context.Context, orgID uuid.UUID, verticalID string) (*models.OrganizationCustomization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.active[pairKey{orgID, verticalID}]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *fakeActiveStore) Save(_ context.Context, p SaveParams) (*models.OrganizationCustomization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{p.OrganizationID, p.VerticalID}
	row, ok := s.active[key]
	if !ok {
		row = &models.OrganizationCustomization{
			ID:             uuid.New(),
			OrganizationID: p.OrganizationID,
			VerticalID:     p.VerticalID,
			IsActive:       true,
			CreatedBy:      p.UserID,
			CreatedAt:      time.Now(),
			// a fresh row resumes after the last history version, as the
			// real insert does
			Version: len(s.history[key]),
		}
		s.active[key] = row
	}
	row.Version++
	row.Config = p.Config
	row.UpdatedBy = p.UserID
	row.UpdatedAt = time.Now()
	s.history[key] = append(s.history[key], models.CustomizationHistory{
		ID:                uuid.New(),
		CustomizationID:   row.ID,
		OrganizationID:    p.OrganizationID,
		VerticalID:        p.VerticalID,
		VersionNumber:     row.Version,
		Config:            p.Config,
		ChangeDescription: p.Description,
		ChangeNote:        p.Note,
		CreatedBy:         p.UserID,
		CreatedAt:         time.Now(),
	})
	copied := *row
	return &copied, nil
}

func (s *fakeActiveStore) Deactivate(_ context.Context, orgID uuid.UUID, verticalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, pairKey{orgID, verticalID})
	return nil
}

type fakeDraftCache struct {
	mu     sync.Mutex
	drafts map[string]*models.CustomizationDraft
}

func newFakeDraftCache() *fakeDraftCache {
	return &fakeDraftCache{drafts: make(map[string]*models.CustomizationDraft)}
}

func cacheKey(orgID uuid.UUID, verticalID string, sessionID uuid.UUID) string {
	return orgID.String() + "/" + verticalID + "/" + sessionID.String()
}

func (c *fakeDraftCache) Get(_ context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*models.CustomizationDraft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[cacheKey(orgID, verticalID, sessionID)]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (c *fakeDraftCache) Put(_ context.Context, d *models.CustomizationDraft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *d
	c.drafts[cacheKey(d.OrganizationID, d.VerticalID, d.SessionID)] = &copied
	return nil
}

func (c *fakeDraftCache) Delete(_ context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drafts, cacheKey(orgID, verticalID, sessionID))
	return nil
}

func serviceRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(`
verticals:
  - id: ministry
    name: Ministry
    section_labels:
      departments: Core Ministries
    departments:
      - id: worship
        name: Worship
        core: true
      - id: youth
        name: Youth
        core: true
`))
	require.NoError(t, err)
	return reg
}

func newTestService(t *testing.T) (*Service, *fakeActiveStore, *fakeDraftCache) {
	t.Helper()
	store := newFakeActiveStore()
	drafts := newFakeDraftCache()
	return NewService(store, drafts, serviceRegistry(t), nil), store, drafts
}

func TestEffectiveUsesVerticalDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	cfg, active, err := svc.Effective(context.Background(), uuid.New(), "ministry")
	require.NoError(t, err)
	require.Nil(t, active)
	require.Equal(t, "Core Ministries", cfg.Navigation.SectionLabels["departments"])
	require.Equal(t, "Dashboard", cfg.Dashboard.Title)
	require.Equal(t, "#1d4ed8", cfg.Branding.PrimaryColor)
}

func TestEffectiveUnknownVertical(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Effective(context.Background(), uuid.New(), "bogus")
	require.Error(t, err)
}

func TestDraftLifecycle(t *testing.T) {
	svc, store, drafts := newTestService(t)
	ctx := context.Background()
	orgID, sessionID, userID := uuid.New(), uuid.New(), uuid.New()

	// fresh draft: synthesized, not cached, no changes
	draft, err := svc.GetDraft(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.False(t, draft.HasChanges)
	require.Zero(t, draft.BaseVersion)
	require.Empty(t, drafts.drafts)

	// patch marks it dirty and caches it
	draft, err = svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Dashboard: json.RawMessage(`{"title":"Mission Control"}`),
	})
	require.NoError(t, err)
	require.True(t, draft.HasChanges)
	require.Equal(t, "Mission Control", draft.Config.Dashboard.Title)
	require.Len(t, drafts.drafts, 1)

	// save persists version 1 and clears the cache
	saved, err := svc.Save(ctx, orgID, "ministry", sessionID, userID, "Renamed dashboard", "")
	require.NoError(t, err)
	require.Equal(t, 1, saved.Version)
	require.Empty(t, drafts.drafts)
	require.Len(t, store.history[pairKey{orgID, "ministry"}], 1)

	// next draft starts from the saved version
	draft, err = svc.GetDraft(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.Equal(t, 1, draft.BaseVersion)
	require.Equal(t, "Mission Control", draft.Config.Dashboard.Title)
	require.False(t, draft.HasChanges)
}

func TestPatchDraftMergesFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	orgID, sessionID := uuid.New(), uuid.New()

	_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Branding: json.RawMessage(`{"organization_name":"First Light","primary_color":"#047857"}`),
	})
	require.NoError(t, err)

	// a later patch touching one field keeps the rest
	draft, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Branding: json.RawMessage(`{"accent_color":"#b91c1c"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "First Light", draft.Config.Branding.OrganizationName)
	require.Equal(t, "#047857", draft.Config.Branding.PrimaryColor)
	require.Equal(t, "#b91c1c", draft.Config.Branding.AccentColor)
}

func TestPatchDraftRejectsUnknownFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.PatchDraft(context.Background(), uuid.New(), "ministry", uuid.New(), BlockPatch{
		Dashboard: json.RawMessage(`{"title":"x","surprise":true}`),
	})
	require.Error(t, err)
}

func TestSaveWithoutChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Save(context.Background(), uuid.New(), "ministry", uuid.New(), uuid.New(), "", "")
	require.ErrorIs(t, err, ErrNothingToSave)
}

func TestSaveIncrementsVersion(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	orgID, sessionID, userID := uuid.New(), uuid.New(), uuid.New()

	for i := 1; i <= 3; i++ {
		_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
			Dashboard: json.RawMessage(`{"title":"v"}`),
		})
		require.NoError(t, err)
		saved, err := svc.Save(ctx, orgID, "ministry", sessionID, userID, "", "")
		require.NoError(t, err)
		require.Equal(t, i, saved.Version)
	}

	snaps := store.history[pairKey{orgID, "ministry"}]
	require.Len(t, snaps, 3)
	for i, snap := range snaps {
		require.Equal(t, i+1, snap.VersionNumber)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	svc, store, drafts := newTestService(t)
	ctx := context.Background()
	orgID, sessionID, userID := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Dashboard: json.RawMessage(`{"title":"Mission Control"}`),
	})
	require.NoError(t, err)
	_, err = svc.Save(ctx, orgID, "ministry", sessionID, userID, "", "")
	require.NoError(t, err)

	_, err = svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Dashboard: json.RawMessage(`{"title":"Not saved"}`),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResetToDefaults(ctx, orgID, "ministry", sessionID))

	// defaults apply again, the lingering draft is gone, history survives
	cfg, active, err := svc.Effective(ctx, orgID, "ministry")
	require.NoError(t, err)
	require.Nil(t, active)
	require.Equal(t, "Dashboard", cfg.Dashboard.Title)
	require.Empty(t, drafts.drafts)
	require.Len(t, store.history[pairKey{orgID, "ministry"}], 1)

	require.Error(t, svc.ResetToDefaults(ctx, orgID, "school", sessionID))
}

func TestSaveAfterResetResumesVersioning(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	orgID, sessionID, userID := uuid.New(), uuid.New(), uuid.New()

	for i := 1; i <= 2; i++ {
		_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
			Dashboard: json.RawMessage(`{"title":"v"}`),
		})
		require.NoError(t, err)
		_, err = svc.Save(ctx, orgID, "ministry", sessionID, userID, "", "")
		require.NoError(t, err)
	}

	require.NoError(t, svc.ResetToDefaults(ctx, orgID, "ministry", sessionID))

	// the post-reset save must not reuse version numbers already in history
	_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Dashboard: json.RawMessage(`{"title":"fresh start"}`),
	})
	require.NoError(t, err)
	saved, err := svc.Save(ctx, orgID, "ministry", sessionID, userID, "", "")
	require.NoError(t, err)
	require.Equal(t, 3, saved.Version)

	snaps := store.history[pairKey{orgID, "ministry"}]
	require.Len(t, snaps, 3)
	seen := map[int]bool{}
	for _, snap := range snaps {
		require.False(t, seen[snap.VersionNumber])
		seen[snap.VersionNumber] = true
	}
}

func TestDiscardDraft(t *testing.T) {
	svc, _, drafts := newTestService(t)
	ctx := context.Background()
	orgID, sessionID := uuid.New(), uuid.New()

	_, err := svc.PatchDraft(ctx, orgID, "ministry", sessionID, BlockPatch{
		Stats: json.RawMessage(`{"card_labels":{"members":"People"}}`),
	})
	require.NoError(t, err)
	require.Len(t, drafts.drafts, 1)

	require.NoError(t, svc.DiscardDraft(ctx, orgID, "ministry", sessionID))
	require.Empty(t, drafts.drafts)
}

func TestSetAndClearLogo(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	orgID, sessionID := uuid.New(), uuid.New()

	draft, oldKey, err := svc.SetLogo(ctx, orgID, "ministry", sessionID,
		"https://assets.example.com/logo-1.png", orgID.String()+"/logo-1.png")
	require.NoError(t, err)
	require.Empty(t, oldKey)
	require.True(t, draft.HasChanges)
	require.Equal(t, "https://assets.example.com/logo-1.png", draft.Config.Branding.LogoURL)

	_, oldKey, err = svc.SetLogo(ctx, orgID, "ministry", sessionID,
		"https://assets.example.com/logo-2.png", orgID.String()+"/logo-2.png")
	require.NoError(t, err)
	require.Equal(t, orgID.String()+"/logo-1.png", oldKey)

	draft, oldKey, err = svc.ClearLogo(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.Equal(t, orgID.String()+"/logo-2.png", oldKey)
	require.Empty(t, draft.Config.Branding.LogoURL)
	require.Empty(t, draft.Config.Branding.LogoKey)
}

func TestDraftsAreSessionScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()
	a, b := uuid.New(), uuid.New()

	_, err := svc.PatchDraft(ctx, orgID, "ministry", a, BlockPatch{
		Dashboard: json.RawMessage(`{"title":"Session A"}`),
	})
	require.NoError(t, err)

	draftB, err := svc.GetDraft(ctx, orgID, "ministry", b)
	require.NoError(t, err)
	require.False(t, draftB.HasChanges)
	require.NotEqual(t, "Session A", draftB.Config.Dashboard.Title)
}
