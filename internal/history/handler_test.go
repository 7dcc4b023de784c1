package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orbit-saas/settings-backend/internal/organizations"
)

func diffContext(t *testing.T, orgID uuid.UUID, vertical string, aID, bID uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{
		{Key: "vertical", Value: vertical},
		{Key: "a", Value: aID.String()},
		{Key: "b", Value: bID.String()},
	}
	c.Set(organizations.ContextOrganizationID, orgID)
	return c, w
}

func TestDiffHandlerRejectsForeignSnapshots(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(backend, backend, RetentionPolicy{}, nil)
	h := NewHandler(svc, nil, nil)
	ctx := context.Background()
	orgA, orgB, userID := uuid.New(), uuid.New(), uuid.New()

	_, err := backend.SaveBlocks(ctx, orgA, "ministry", userID, dashboardConfig("Mine"), "", "")
	require.NoError(t, err)
	_, err = backend.SaveBlocks(ctx, orgB, "ministry", userID, dashboardConfig("Theirs"), "", "")
	require.NoError(t, err)

	mine, err := backend.List(ctx, orgA, "ministry", 0, false)
	require.NoError(t, err)
	theirs, err := backend.List(ctx, orgB, "ministry", 0, false)
	require.NoError(t, err)

	// membership of org A does not expose org B's snapshots
	c, w := diffContext(t, orgA, "ministry", mine[0].ID, theirs[0].ID)
	h.Diff(c)
	require.Equal(t, http.StatusNotFound, w.Code)

	c, w = diffContext(t, orgA, "ministry", mine[0].ID, mine[0].ID)
	h.Diff(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDiffHandlerRejectsMalformedIDs(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(backend, backend, RetentionPolicy{}, nil)
	h := NewHandler(svc, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{
		{Key: "vertical", Value: "ministry"},
		{Key: "a", Value: "not-a-uuid"},
		{Key: "b", Value: uuid.NewString()},
	}
	c.Set(organizations.ContextOrganizationID, uuid.New())
	h.Diff(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
