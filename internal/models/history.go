package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomizationHistory is an append-only snapshot of a saved customization.
// Rows are never mutated except to set the milestone fields.
type CustomizationHistory struct {
	ID                uuid.UUID    `json:"id"`
	CustomizationID   uuid.UUID    `json:"customization_id"`
	OrganizationID    uuid.UUID    `json:"organization_id"`
	VerticalID        string       `json:"vertical_id"`
	VersionNumber     int          `json:"version_number"`
	Config            ConfigBlocks `json:"config"`
	ChangeDescription string       `json:"change_description,omitempty"`
	ChangeNote        string       `json:"change_note,omitempty"`
	IsMilestone       bool         `json:"is_milestone"`
	MilestoneName     string       `json:"milestone_name,omitempty"`
	MilestoneNotes    string       `json:"milestone_notes,omitempty"`
	CreatedBy         uuid.UUID    `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
}

// RetentionSummary reports how many history rows each retention rule keeps
// and how many fall outside all of them.
type RetentionSummary struct {
	VerticalID    string `json:"vertical_id,omitempty"`
	Total         int    `json:"total"`
	KeptRecent    int    `json:"kept_recent"`    // inside the newest-N window
	KeptByAge     int    `json:"kept_by_age"`    // inside the last-N-days window
	KeptMilestone int    `json:"kept_milestone"` // milestone rows
	Eligible      int    `json:"eligible"`       // outside all three sets
}

// CleanupResult reports deletions per vertical from a retention cleanup run.
type CleanupResult struct {
	VerticalID string `json:"vertical_id"`
	Deleted    int    `json:"deleted"`
}
