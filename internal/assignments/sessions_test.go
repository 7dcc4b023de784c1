package assignments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(`
verticals:
  - id: ministry
    name: Ministry
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

func TestManagerGetCreatesAndReuses(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeNotifier{}, testRegistry(t), zap.NewNop())
	ctx := context.Background()

	orgID := uuid.New()
	sessionID := uuid.New()

	rec, err := m.Get(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.Equal(t, StateIdle, rec.State())

	again, err := m.Get(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.Same(t, rec, again)

	other, err := m.Get(ctx, orgID, "ministry", uuid.New())
	require.NoError(t, err)
	require.NotSame(t, rec, other)

	_, err = m.Get(ctx, orgID, "no-such-vertical", sessionID)
	require.Error(t, err)
}

func TestManagerOnForeignChangeReloadsSiblings(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeNotifier{}, testRegistry(t), zap.NewNop())
	ctx := context.Background()

	orgID := uuid.New()
	origin := uuid.New()
	sibling := uuid.New()

	originRec, err := m.Get(ctx, orgID, "ministry", origin)
	require.NoError(t, err)
	siblingRec, err := m.Get(ctx, orgID, "ministry", sibling)
	require.NoError(t, err)

	// origin persists a move; its local view already reflects it
	require.NoError(t, originRec.BeginDrag("worship"))
	admin := models.SectionAdmin
	require.NoError(t, originRec.Drop(ctx, DropTarget{SectionID: &admin}))

	// sibling still shows the stale position
	require.Equal(t, models.SectionDepartments, sectionOf(t, siblingRec, "worship"))

	m.OnForeignChange(ctx, orgID, "ministry", origin)

	require.Equal(t, models.SectionAdmin, sectionOf(t, siblingRec, "worship"))
	// origin keeps its optimistic state rather than reloading mid-edit
	require.Equal(t, models.SectionAdmin, sectionOf(t, originRec, "worship"))
}

func TestManagerDrop(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeNotifier{}, testRegistry(t), zap.NewNop())
	ctx := context.Background()

	orgID := uuid.New()
	sessionID := uuid.New()
	rec, err := m.Get(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)

	m.Drop(orgID, "ministry", sessionID)
	fresh, err := m.Get(ctx, orgID, "ministry", sessionID)
	require.NoError(t, err)
	require.NotSame(t, rec, fresh)
}
