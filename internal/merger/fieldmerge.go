package merger

import (
	"encoding/json"
	"fmt"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// MergeFields applies override onto base, key by key:
//
//   - nil and empty-string values in override are ignored (base retained)
//   - object values are shallow-merged with base's value at that key
//   - everything else overwrites outright
//
// Neither input is mutated.
func MergeFields(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if skipValue(v) {
			continue
		}
		if ovMap, ok := v.(map[string]any); ok {
			if baseMap, ok := out[k].(map[string]any); ok {
				merged := make(map[string]any, len(baseMap)+len(ovMap))
				for bk, bv := range baseMap {
					merged[bk] = bv
				}
				for ok2, ov := range ovMap {
					if ov == nil {
						continue
					}
					merged[ok2] = ov
				}
				out[k] = merged
				continue
			}
		}
		out[k] = v
	}
	return out
}

func skipValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// MergeBlocks applies override's config blocks onto base's, block by block,
// using MergeFields semantics. Used when layering a saved customization (or
// a draft) over vertical defaults.
func MergeBlocks(base, override models.ConfigBlocks) (models.ConfigBlocks, error) {
	var out models.ConfigBlocks
	if err := MergeStruct(base.Dashboard, override.Dashboard, &out.Dashboard); err != nil {
		return out, fmt.Errorf("dashboard: %w", err)
	}
	if err := MergeStruct(base.Navigation, override.Navigation, &out.Navigation); err != nil {
		return out, fmt.Errorf("navigation: %w", err)
	}
	if err := MergeStruct(base.Branding, override.Branding, &out.Branding); err != nil {
		return out, fmt.Errorf("branding: %w", err)
	}
	if err := MergeStruct(base.Stats, override.Stats, &out.Stats); err != nil {
		return out, fmt.Errorf("stats: %w", err)
	}
	if err := MergeStruct(base.Department, override.Department, &out.Department); err != nil {
		return out, fmt.Errorf("department: %w", err)
	}
	return out, nil
}

// MergeStruct round-trips two structs of the same shape through JSON maps,
// merges them, and decodes the result into out.
func MergeStruct(base, override any, out any) error {
	baseMap, err := toMap(base)
	if err != nil {
		return err
	}
	ovMap, err := toMap(override)
	if err != nil {
		return err
	}
	merged, err := json.Marshal(MergeFields(baseMap, ovMap))
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, out)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
