package models

import (
	"time"

	"github.com/google/uuid"
)

// DashboardConfig customizes dashboard header labels.
type DashboardConfig struct {
	Title          string `json:"title,omitempty"`
	Subtitle       string `json:"subtitle,omitempty"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
}

// NavigationConfig customizes navigation section labels and hidden items.
type NavigationConfig struct {
	SectionLabels map[string]string `json:"section_labels,omitempty"` // section id -> label
	HiddenItems   []string          `json:"hidden_items,omitempty"`
}

// BrandingConfig customizes organization identity: name, logo, theme colors.
type BrandingConfig struct {
	OrganizationName string `json:"organization_name,omitempty"`
	LogoURL          string `json:"logo_url,omitempty"`
	LogoKey          string `json:"logo_key,omitempty"` // object storage key, for deletion
	PrimaryColor     string `json:"primary_color,omitempty"`
	SecondaryColor   string `json:"secondary_color,omitempty"`
	AccentColor      string `json:"accent_color,omitempty"`
}

// StatsConfig customizes stat-card labels, keyed by card id.
type StatsConfig struct {
	CardLabels map[string]string `json:"card_labels,omitempty"`
}

// DepartmentOverride customizes one department's display name and description.
// Section membership and ordering live in SectionAssignment, not here.
type DepartmentOverride struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// DepartmentConfig holds per-department name/description overrides.
type DepartmentConfig struct {
	Departments []DepartmentOverride `json:"departments,omitempty"`
}

// ConfigBlocks groups the five customization sections that are drafted,
// saved, and snapshotted together.
type ConfigBlocks struct {
	Dashboard  DashboardConfig  `json:"dashboard"`
	Navigation NavigationConfig `json:"navigation"`
	Branding   BrandingConfig   `json:"branding"`
	Stats      StatsConfig      `json:"stats"`
	Department DepartmentConfig `json:"department"`
}

// Override returns the department override for id, or nil.
func (c DepartmentConfig) Override(id string) *DepartmentOverride {
	for i := range c.Departments {
		if c.Departments[i].ID == id {
			return &c.Departments[i]
		}
	}
	return nil
}

// OrganizationCustomization is the active customization row for an
// (organization, vertical) pair. At most one row per pair has IsActive true.
type OrganizationCustomization struct {
	ID             uuid.UUID    `json:"id"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	VerticalID     string       `json:"vertical_id"`
	Config         ConfigBlocks `json:"config"`
	Version        int          `json:"version"`
	IsActive       bool         `json:"is_active"`
	CreatedBy      uuid.UUID    `json:"created_by"`
	UpdatedBy      uuid.UUID    `json:"updated_by"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CustomizationDraft is a session-held unsaved copy of the config blocks.
// Cached server-side per (organization, vertical, session) and never a
// source of truth: cleared on save, discard, and vertical switch.
type CustomizationDraft struct {
	OrganizationID uuid.UUID    `json:"organization_id"`
	VerticalID     string       `json:"vertical_id"`
	SessionID      uuid.UUID    `json:"session_id"`
	Config         ConfigBlocks `json:"config"`
	BaseVersion    int          `json:"base_version"` // active row version the draft started from, 0 if none
	HasChanges     bool         `json:"has_changes"`
	LastSaved      *time.Time   `json:"last_saved,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
