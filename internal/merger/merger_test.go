package merger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

func testVertical() *registry.Vertical {
	return &registry.Vertical{
		ID:   "ministry",
		Name: "Ministry",
		Departments: []registry.Department{
			{ID: "worship", Name: "Worship", Core: true},
			{ID: "children", Name: "Children's Ministry", Core: true},
			{ID: "youth", Name: "Youth", Core: true},
			{ID: "finance", Name: "Finance", HomeSection: models.SectionOperations},
			{ID: "communications", Name: "Communications"},
		},
	}
}

func row(dept string, section models.SectionID, order int, visible bool) models.SectionAssignment {
	return models.SectionAssignment{
		DepartmentID: dept,
		SectionID:    section,
		DisplayOrder: order,
		IsVisible:    visible,
	}
}

func deptIDs(items []models.DepartmentItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.DepartmentID
	}
	return ids
}

func TestMergeNoAssignments(t *testing.T) {
	v := testVertical()
	out := Merge(v, nil)

	// every department lands in its home section, visible, in registry order
	require.Equal(t, []string{"worship", "children", "youth", "communications"}, deptIDs(out[models.SectionDepartments]))
	require.Equal(t, []string{"finance"}, deptIDs(out[models.SectionOperations]))
	require.Empty(t, out[models.SectionDocuments])
	require.Empty(t, out[models.SectionAdmin])

	for _, items := range out {
		for i, it := range items {
			require.True(t, it.Visible)
			require.False(t, it.Assigned)
			require.Equal(t, i, it.DisplayOrder)
		}
	}
}

func TestMergeDeterministic(t *testing.T) {
	v := testVertical()
	rows := []models.SectionAssignment{
		row("youth", models.SectionAdmin, 5, true),
		row("worship", models.SectionAdmin, 5, false),
		row("finance", models.SectionDocuments, 0, true),
	}

	first := Merge(v, rows)
	second := Merge(v, rows)
	require.Equal(t, first, second)

	// order, visibility, and section membership all stable across calls
	for section, items := range first {
		require.Equal(t, deptIDs(items), deptIDs(second[section]))
	}
}

func TestMergeAssignmentMovesDepartmentFromHome(t *testing.T) {
	v := &registry.Vertical{
		ID:   "company",
		Name: "Company",
		Departments: []registry.Department{
			{ID: "engineering", Name: "Engineering", Core: true},
			{ID: "human-resources", Name: "Human Resources", Core: true},
		},
	}

	// no assignment row: human-resources sits at the end of its home section
	out := Merge(v, nil)
	ids := deptIDs(out[models.SectionDepartments])
	require.Equal(t, "human-resources", ids[len(ids)-1])
	require.True(t, out[models.SectionDepartments][len(ids)-1].Visible)
	require.Empty(t, out[models.SectionOperations])

	// one row moves it to operations at position 0
	out = Merge(v, []models.SectionAssignment{
		row("human-resources", models.SectionOperations, 0, true),
	})
	require.Equal(t, []string{"human-resources"}, deptIDs(out[models.SectionOperations]))
	require.Equal(t, []string{"engineering"}, deptIDs(out[models.SectionDepartments]))
	require.True(t, out[models.SectionOperations][0].Visible)
}

func TestMergeEveryDepartmentAppearsOnce(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("worship", models.SectionAdmin, 0, true),
		row("finance", models.SectionDocuments, 3, false),
	})

	seen := map[string]int{}
	for _, items := range out {
		for _, it := range items {
			seen[it.DepartmentID]++
		}
	}
	require.Len(t, seen, len(v.Departments))
	for id, n := range seen {
		require.Equal(t, 1, n, "department %s appears %d times", id, n)
	}
}

func TestMergeAssignedOrdering(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("youth", models.SectionAdmin, 20, true),
		row("worship", models.SectionAdmin, 10, true),
		row("children", models.SectionAdmin, 10, true), // tie broken by id
	})

	require.Equal(t, []string{"children", "worship", "youth"}, deptIDs(out[models.SectionAdmin]))
}

func TestMergeUnassignedAfterAssigned(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("communications", models.SectionDepartments, 0, true),
	})

	ids := deptIDs(out[models.SectionDepartments])
	require.Equal(t, "communications", ids[0])
	// the unassigned core departments follow in registry order
	require.Equal(t, []string{"worship", "children", "youth"}, ids[1:])
}

func TestMergeIgnoresBadRows(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("no-such-department", models.SectionAdmin, 0, true),
		row("worship", "basement", 0, true),
		row("youth", models.SectionAdmin, 1, true),
		row("youth", models.SectionDocuments, 5, true), // duplicate, first wins
	})

	require.Empty(t, out[models.SectionDocuments])
	require.Equal(t, []string{"youth"}, deptIDs(out[models.SectionAdmin]))
	// worship fell back to its home section
	require.Contains(t, deptIDs(out[models.SectionDepartments]), "worship")
}

func TestMergeVisibilityFromRow(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("worship", models.SectionDepartments, 0, false),
	})

	items := out[models.SectionDepartments]
	require.Equal(t, "worship", items[0].DepartmentID)
	require.False(t, items[0].Visible)
	require.True(t, items[0].IsCore)
}

func TestApplyDepartmentConfig(t *testing.T) {
	v := testVertical()
	out := Merge(v, nil)

	cfg := models.DepartmentConfig{Departments: []models.DepartmentOverride{
		{ID: "worship", Name: "Praise & Worship"},
		{ID: "children", Description: "Ages 0-12"},
	}}
	customized := ApplyDepartmentConfig(out, cfg)

	items := customized[models.SectionDepartments]
	require.Equal(t, "Praise & Worship", items[0].Name)
	require.Equal(t, "Worship", items[0].DefaultName)
	require.Equal(t, "Ages 0-12", items[1].Description)
	require.Equal(t, "Children's Ministry", items[1].Name)

	// input untouched
	require.Equal(t, "Worship", out[models.SectionDepartments][0].Name)
}

func TestFlattenSectionOrder(t *testing.T) {
	v := testVertical()
	out := Merge(v, []models.SectionAssignment{
		row("worship", models.SectionDocuments, 0, true),
	})

	flat := Flatten(out)
	require.Len(t, flat, len(v.Departments))
	require.Equal(t, "worship", flat[0].DepartmentID)
}
