// Package merger reconciles the department registry with persisted section
// assignments and applies customization overrides. Everything here is pure:
// no I/O, identical inputs give identical outputs.
package merger

import (
	"sort"

	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

// Merge partitions every department of the vertical into sections.
//
// Departments with an assignment row take section, order, and visibility
// from the row; within a section they sort by display_order ascending
// (ties broken by department id). Departments without a row land at the
// end of their home section, visible, in registry order. Rows referencing
// departments unknown to the vertical, or naming an unknown section, are
// ignored.
func Merge(v *registry.Vertical, assignments []models.SectionAssignment) models.SectionedDepartments {
	assigned := make(map[string]models.SectionAssignment, len(assignments))
	for _, row := range assignments {
		if v.Department(row.DepartmentID) == nil || !models.ValidSection(row.SectionID) {
			continue
		}
		if _, dup := assigned[row.DepartmentID]; dup {
			continue
		}
		assigned[row.DepartmentID] = row
	}

	out := make(models.SectionedDepartments, len(models.Sections))
	for _, s := range models.Sections {
		out[s] = []models.DepartmentItem{}
	}

	for _, dept := range v.Departments {
		row, ok := assigned[dept.ID]
		item := models.DepartmentItem{
			DepartmentID:       dept.ID,
			Name:               dept.Name,
			Description:        dept.Description,
			DefaultName:        dept.Name,
			DefaultDescription: dept.Description,
			IsCore:             dept.Core,
			Assigned:           ok,
		}
		if ok {
			item.SectionID = row.SectionID
			item.DisplayOrder = row.DisplayOrder
			item.Visible = row.IsVisible
		} else {
			item.SectionID = dept.Home()
			item.Visible = true
		}
		out[item.SectionID] = append(out[item.SectionID], item)
	}

	for s, items := range out {
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i], items[j]
			switch {
			case a.Assigned && b.Assigned:
				if a.DisplayOrder != b.DisplayOrder {
					return a.DisplayOrder < b.DisplayOrder
				}
				return a.DepartmentID < b.DepartmentID
			case a.Assigned != b.Assigned:
				return a.Assigned // unassigned go after assigned
			default:
				return false // unassigned keep registry order
			}
		})
		for i := range items {
			if !items[i].Assigned {
				items[i].DisplayOrder = i
			}
		}
		out[s] = items
	}
	return out
}

// ApplyDepartmentConfig layers custom names and descriptions from the
// department config block onto merged output. Empty override fields keep
// the defaults.
func ApplyDepartmentConfig(sections models.SectionedDepartments, cfg models.DepartmentConfig) models.SectionedDepartments {
	out := make(models.SectionedDepartments, len(sections))
	for s, items := range sections {
		copied := make([]models.DepartmentItem, len(items))
		copy(copied, items)
		for i := range copied {
			ov := cfg.Override(copied[i].DepartmentID)
			if ov == nil {
				continue
			}
			if ov.Name != "" {
				copied[i].Name = ov.Name
			}
			if ov.Description != "" {
				copied[i].Description = ov.Description
			}
		}
		out[s] = copied
	}
	return out
}

// Flatten returns all items across sections in section display order.
func Flatten(sections models.SectionedDepartments) []models.DepartmentItem {
	var out []models.DepartmentItem
	for _, s := range models.Sections {
		out = append(out, sections[s]...)
	}
	return out
}
