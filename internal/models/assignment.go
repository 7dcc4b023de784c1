package models

import (
	"time"

	"github.com/google/uuid"
)

// SectionID is one of the fixed navigational groupings a department can
// belong to.
type SectionID string

const (
	SectionDocuments   SectionID = "documents"
	SectionDepartments SectionID = "departments"
	SectionOperations  SectionID = "operations"
	SectionAdmin       SectionID = "admin"
)

// Sections lists all section ids in display order.
var Sections = []SectionID{SectionDocuments, SectionDepartments, SectionOperations, SectionAdmin}

// ValidSection reports whether s names a known section.
func ValidSection(s SectionID) bool {
	for _, v := range Sections {
		if v == s {
			return true
		}
	}
	return false
}

// SectionAssignment is the persisted record of a department's section,
// order, and visibility for an (organization, vertical) pair. Created
// implicitly on first move or visibility toggle; deleted only by
// reset-to-defaults.
type SectionAssignment struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	VerticalID     string    `json:"vertical_id"`
	DepartmentID   string    `json:"department_id"`
	SectionID      SectionID `json:"section_id"`
	DisplayOrder   int       `json:"display_order"`
	IsVisible      bool      `json:"is_visible"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DepartmentItem is the merged view of one department: registry defaults
// layered with its assignment row and department config overrides.
type DepartmentItem struct {
	DepartmentID       string    `json:"department_id"`
	SectionID          SectionID `json:"section_id"`
	DisplayOrder       int       `json:"display_order"`
	Visible            bool      `json:"visible"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	DefaultName        string    `json:"default_name"`
	DefaultDescription string    `json:"default_description"`
	IsCore             bool      `json:"is_core"`
	Assigned           bool      `json:"assigned"` // true when backed by an assignment row
}

// SectionedDepartments maps each section to its ordered department list.
// Every department known to the vertical appears in exactly one section.
type SectionedDepartments map[SectionID][]DepartmentItem
