// Package registry holds the deploy-time department registry: per vertical,
// the core and additional departments with their default names, descriptions,
// and home sections. Loaded once from an embedded YAML file.
package registry

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/orbit-saas/settings-backend/internal/models"
)

//go:embed verticals.yaml
var verticalsYAML []byte

// Department is one registry entry. Immutable after load.
type Department struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Core        bool   `yaml:"core" json:"core"`
	// HomeSection overrides the default section for departments with no
	// assignment row. Empty means the departments section.
	HomeSection models.SectionID `yaml:"home_section,omitempty" json:"home_section,omitempty"`
}

// Home returns the section a department lands in when it has no
// assignment row.
func (d Department) Home() models.SectionID {
	if d.HomeSection != "" {
		return d.HomeSection
	}
	return models.SectionDepartments
}

// Vertical is the registry for one tenant vertical.
type Vertical struct {
	ID            string                      `yaml:"id" json:"id"`
	Name          string                      `yaml:"name" json:"name"`
	SectionLabels map[models.SectionID]string `yaml:"section_labels,omitempty" json:"section_labels,omitempty"`
	Departments   []Department                `yaml:"departments" json:"departments"`
}

// SectionLabel returns the vertical's display label for a section, falling
// back to a generic default.
func (v *Vertical) SectionLabel(s models.SectionID) string {
	if label, ok := v.SectionLabels[s]; ok {
		return label
	}
	switch s {
	case models.SectionDocuments:
		return "Documents"
	case models.SectionDepartments:
		return "Departments"
	case models.SectionOperations:
		return "Operations"
	case models.SectionAdmin:
		return "Admin"
	}
	return string(s)
}

// Department returns the registry entry for id, or nil.
func (v *Vertical) Department(id string) *Department {
	for i := range v.Departments {
		if v.Departments[i].ID == id {
			return &v.Departments[i]
		}
	}
	return nil
}

// Registry is the loaded set of verticals.
type Registry struct {
	byID  map[string]*Vertical
	order []string
}

type registryFile struct {
	Verticals []Vertical `yaml:"verticals"`
}

// Load parses the embedded vertical definitions.
func Load() (*Registry, error) {
	return Parse(verticalsYAML)
}

// Parse builds a registry from YAML bytes and validates it: vertical and
// department ids must be unique, home sections must name known sections.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse verticals: %w", err)
	}
	r := &Registry{byID: make(map[string]*Vertical)}
	for i := range file.Verticals {
		v := &file.Verticals[i]
		if v.ID == "" {
			return nil, fmt.Errorf("vertical %d: missing id", i)
		}
		if _, dup := r.byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate vertical %q", v.ID)
		}
		for s := range v.SectionLabels {
			if !models.ValidSection(s) {
				return nil, fmt.Errorf("vertical %q: unknown section label key %q", v.ID, s)
			}
		}
		seen := make(map[string]bool, len(v.Departments))
		for _, d := range v.Departments {
			if d.ID == "" {
				return nil, fmt.Errorf("vertical %q: department with empty id", v.ID)
			}
			if seen[d.ID] {
				return nil, fmt.Errorf("vertical %q: duplicate department %q", v.ID, d.ID)
			}
			seen[d.ID] = true
			if d.HomeSection != "" && !models.ValidSection(d.HomeSection) {
				return nil, fmt.Errorf("vertical %q: department %q: unknown section %q", v.ID, d.ID, d.HomeSection)
			}
		}
		r.byID[v.ID] = v
		r.order = append(r.order, v.ID)
	}
	if len(r.order) == 0 {
		return nil, fmt.Errorf("no verticals defined")
	}
	return r, nil
}

// Get returns the vertical for id.
func (r *Registry) Get(id string) (*Vertical, error) {
	v, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown vertical %q", id)
	}
	return v, nil
}

// Has reports whether id names a known vertical.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns all verticals in declaration order.
func (r *Registry) List() []*Vertical {
	out := make([]*Vertical, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
