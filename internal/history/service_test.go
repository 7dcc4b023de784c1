package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// fakeBackend implements both Store and Saver: saves append snapshots with
// incrementing versions, the way the real save protocol does.
type fakeBackend struct {
	mu       sync.Mutex
	rows     []models.CustomizationHistory
	versions map[string]int // orgID/verticalID -> latest version

	keepRecentSeen int
	keepDaysSeen   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{versions: make(map[string]int)}
}

func backendKey(orgID uuid.UUID, verticalID string) string {
	return orgID.String() + "/" + verticalID
}

func (f *fakeBackend) SaveBlocks(_ context.Context, orgID uuid.UUID, verticalID string, userID uuid.UUID, cfg models.ConfigBlocks, description, note string) (*models.OrganizationCustomization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := backendKey(orgID, verticalID)
	f.versions[key]++
	version := f.versions[key]
	f.rows = append(f.rows, models.CustomizationHistory{
		ID:                uuid.New(),
		OrganizationID:    orgID,
		VerticalID:        verticalID,
		VersionNumber:     version,
		Config:            cfg,
		ChangeDescription: description,
		ChangeNote:        note,
		CreatedBy:         userID,
		CreatedAt:         time.Now(),
	})
	return &models.OrganizationCustomization{
		OrganizationID: orgID,
		VerticalID:     verticalID,
		Config:         cfg,
		Version:        version,
		IsActive:       true,
		UpdatedBy:      userID,
	}, nil
}

func (f *fakeBackend) List(_ context.Context, orgID uuid.UUID, verticalID string, limit int, milestonesOnly bool) ([]models.CustomizationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CustomizationHistory
	for i := len(f.rows) - 1; i >= 0; i-- { // newest first
		row := f.rows[i]
		if row.OrganizationID != orgID {
			continue
		}
		if verticalID != "" && row.VerticalID != verticalID {
			continue
		}
		if milestonesOnly && !row.IsMilestone {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) GetByID(_ context.Context, id uuid.UUID) (*models.CustomizationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			copied := f.rows[i]
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeBackend) MarkMilestone(_ context.Context, id uuid.UUID, name, notes string) (*models.CustomizationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].IsMilestone = true
			f.rows[i].MilestoneName = name
			f.rows[i].MilestoneNotes = notes
			copied := f.rows[i]
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeBackend) RetentionSummary(_ context.Context, _ uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.RetentionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepRecentSeen, f.keepDaysSeen = keepRecent, keepDays
	return []models.RetentionSummary{{VerticalID: verticalID}}, nil
}

func (f *fakeBackend) Cleanup(_ context.Context, _ uuid.UUID, verticalID string, keepRecent, keepDays int) ([]models.CleanupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepRecentSeen, f.keepDaysSeen = keepRecent, keepDays
	return []models.CleanupResult{{VerticalID: verticalID, Deleted: 0}}, nil
}

func dashboardConfig(title string) models.ConfigBlocks {
	return models.ConfigBlocks{Dashboard: models.DashboardConfig{Title: title}}
}

func newTestHistoryService(t *testing.T) (*Service, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	return NewService(backend, backend, RetentionPolicy{}, nil), backend
}

func TestRollbackCreatesNewVersionFromSnapshot(t *testing.T) {
	svc, backend := newTestHistoryService(t)
	ctx := context.Background()
	orgID, userID := uuid.New(), uuid.New()

	// three saves: v1..v3
	for _, title := range []string{"One", "Two", "Three"} {
		_, err := backend.SaveBlocks(ctx, orgID, "ministry", userID, dashboardConfig(title), "", "")
		require.NoError(t, err)
	}

	entries, err := svc.List(ctx, orgID, "ministry", 0, false)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	v1 := entries[2]
	require.Equal(t, 1, v1.VersionNumber)

	saved, err := svc.Rollback(ctx, v1.ID, userID)
	require.NoError(t, err)

	// rollback appends v4 with v1's config; nothing is deleted
	require.Equal(t, 4, saved.Version)
	require.Equal(t, "One", saved.Config.Dashboard.Title)
	entries, err = svc.List(ctx, orgID, "ministry", 0, false)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "Rolled back to version 1", entries[0].ChangeDescription)
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	svc, _ := newTestHistoryService(t)
	_, err := svc.Rollback(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListMilestonesOnly(t *testing.T) {
	svc, backend := newTestHistoryService(t)
	ctx := context.Background()
	orgID, userID := uuid.New(), uuid.New()

	for _, title := range []string{"One", "Two"} {
		_, err := backend.SaveBlocks(ctx, orgID, "ministry", userID, dashboardConfig(title), "", "")
		require.NoError(t, err)
	}
	all, err := svc.List(ctx, orgID, "ministry", 0, false)
	require.NoError(t, err)

	marked, err := svc.MarkMilestone(ctx, all[1].ID, "Launch config", "approved by board")
	require.NoError(t, err)
	require.True(t, marked.IsMilestone)
	require.Equal(t, "Launch config", marked.MilestoneName)

	milestones, err := svc.List(ctx, orgID, "ministry", 0, true)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	require.Equal(t, all[1].ID, milestones[0].ID)
}

func TestMarkMilestoneRequiresName(t *testing.T) {
	svc, _ := newTestHistoryService(t)
	_, err := svc.MarkMilestone(context.Background(), uuid.New(), "", "notes")
	require.Error(t, err)
}

func TestDiffBlocks(t *testing.T) {
	a := models.ConfigBlocks{
		Dashboard: models.DashboardConfig{Title: "One", Subtitle: "Hello"},
		Branding:  models.BrandingConfig{PrimaryColor: "#111111"},
	}
	b := models.ConfigBlocks{
		Dashboard: models.DashboardConfig{Title: "Two", Subtitle: "Hello"},
		Branding:  models.BrandingConfig{PrimaryColor: "#111111", AccentColor: "#222222"},
	}

	diffs := DiffBlocks(a, b)
	require.Len(t, diffs, 2)
	require.Equal(t, "dashboard", diffs[0].Block)
	require.Equal(t, []string{"title"}, diffs[0].Changed)
	require.Equal(t, "branding", diffs[1].Block)
	require.Equal(t, []string{"accent_color"}, diffs[1].Changed)
}

func TestDiffScopedToOrganizationAndVertical(t *testing.T) {
	svc, backend := newTestHistoryService(t)
	ctx := context.Background()
	orgA, orgB, userID := uuid.New(), uuid.New(), uuid.New()

	_, err := backend.SaveBlocks(ctx, orgA, "ministry", userID, dashboardConfig("A1"), "", "")
	require.NoError(t, err)
	_, err = backend.SaveBlocks(ctx, orgA, "ministry", userID, dashboardConfig("A2"), "", "")
	require.NoError(t, err)
	_, err = backend.SaveBlocks(ctx, orgB, "ministry", userID, dashboardConfig("B1"), "", "")
	require.NoError(t, err)

	inA, err := svc.List(ctx, orgA, "ministry", 0, false)
	require.NoError(t, err)
	inB, err := svc.List(ctx, orgB, "ministry", 0, false)
	require.NoError(t, err)

	diffs, err := svc.Diff(ctx, orgA, "ministry", inA[1].ID, inA[0].ID)
	require.NoError(t, err)
	require.Len(t, diffs, 1)

	// another organization's snapshot is invisible even with a valid id
	_, err = svc.Diff(ctx, orgA, "ministry", inA[0].ID, inB[0].ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Diff(ctx, orgB, "ministry", inA[0].ID, inA[1].ID)
	require.ErrorIs(t, err, ErrNotFound)

	// same organization, wrong vertical
	_, err = svc.Diff(ctx, orgA, "school", inA[0].ID, inA[1].ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	cfg := dashboardConfig("Same")
	require.Empty(t, DiffBlocks(cfg, cfg))
}

func TestPolicyDefaultsApplied(t *testing.T) {
	svc, backend := newTestHistoryService(t)
	ctx := context.Background()

	_, err := svc.RetentionSummary(ctx, uuid.New(), "ministry")
	require.NoError(t, err)
	require.Equal(t, 20, backend.keepRecentSeen)
	require.Equal(t, 90, backend.keepDaysSeen)

	custom := NewService(backend, backend, RetentionPolicy{KeepRecent: 5, KeepDays: 30}, nil)
	_, err = custom.Cleanup(ctx, uuid.New(), "")
	require.NoError(t, err)
	require.Equal(t, 5, backend.keepRecentSeen)
	require.Equal(t, 30, backend.keepDaysSeen)
}
