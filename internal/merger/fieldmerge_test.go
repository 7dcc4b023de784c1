package merger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbit-saas/settings-backend/internal/models"
)

func TestMergeFields(t *testing.T) {
	base := map[string]any{
		"title": "Dashboard",
		"count": float64(3),
		"labels": map[string]any{
			"a": "Alpha",
			"b": "Beta",
		},
	}
	override := map[string]any{
		"title": "",  // empty string ignored
		"count": nil, // nil ignored
		"labels": map[string]any{
			"b": "Bravo",
			"c": "Charlie",
		},
		"extra": "new",
	}

	out := MergeFields(base, override)

	require.Equal(t, "Dashboard", out["title"])
	require.Equal(t, float64(3), out["count"])
	require.Equal(t, "new", out["extra"])
	require.Equal(t, map[string]any{"a": "Alpha", "b": "Bravo", "c": "Charlie"}, out["labels"])

	// inputs untouched
	require.Equal(t, map[string]any{"a": "Alpha", "b": "Beta"}, base["labels"])
}

func TestMergeFieldsOverwritesNonMap(t *testing.T) {
	base := map[string]any{"items": []any{"x"}, "flag": true}
	override := map[string]any{"items": []any{"y", "z"}, "flag": false}

	out := MergeFields(base, override)
	require.Equal(t, []any{"y", "z"}, out["items"])
	require.Equal(t, false, out["flag"])
}

func TestMergeBlocks(t *testing.T) {
	base := models.ConfigBlocks{
		Dashboard: models.DashboardConfig{Title: "Dashboard", Subtitle: "Welcome back"},
		Navigation: models.NavigationConfig{SectionLabels: map[string]string{
			"departments": "Core Ministries",
			"admin":       "Admin",
		}},
		Branding: models.BrandingConfig{PrimaryColor: "#1d4ed8", AccentColor: "#f59e0b"},
	}
	override := models.ConfigBlocks{
		Dashboard: models.DashboardConfig{Title: "Mission Control"},
		Navigation: models.NavigationConfig{SectionLabels: map[string]string{
			"admin": "Leadership",
		}},
		Branding: models.BrandingConfig{OrganizationName: "First Light"},
	}

	out, err := MergeBlocks(base, override)
	require.NoError(t, err)

	require.Equal(t, "Mission Control", out.Dashboard.Title)
	require.Equal(t, "Welcome back", out.Dashboard.Subtitle)
	require.Equal(t, "Core Ministries", out.Navigation.SectionLabels["departments"])
	require.Equal(t, "Leadership", out.Navigation.SectionLabels["admin"])
	require.Equal(t, "#1d4ed8", out.Branding.PrimaryColor)
	require.Equal(t, "First Light", out.Branding.OrganizationName)
}

func TestMergeBlocksEmptyOverrideKeepsBase(t *testing.T) {
	base := models.ConfigBlocks{
		Dashboard: models.DashboardConfig{Title: "Dashboard"},
		Stats:     models.StatsConfig{CardLabels: map[string]string{"members": "Members"}},
	}

	out, err := MergeBlocks(base, models.ConfigBlocks{})
	require.NoError(t, err)
	require.Equal(t, base.Dashboard, out.Dashboard)
	require.Equal(t, base.Stats, out.Stats)
}
