package debug

import (
	"runtime"
	"strings"
)

// EnvEntry is one environment variable in the ordered pair-list form used by
// the cppdbg debugger family.
type EnvEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EnvironmentMerger overlays environment entries onto whatever environment
// representation a base launch configuration already carries. The two
// implementations cover the two debugger families: an ordered list of
// name/value pairs versus a flat map.
type EnvironmentMerger interface {
	// Key is the launch-configuration field the environment lives under.
	Key() string
	// Merge overlays entries onto the existing field value. Later entries
	// win over earlier ones, and all entries win over existing values.
	Merge(existing any, entries []EnvEntry) any
}

// MergerFor selects the merge strategy from the debugger family named in
// the base configuration's type field.
func MergerFor(family string) EnvironmentMerger {
	switch family {
	case "cppdbg", "cppvsdbg":
		return PairListMerger{CaseInsensitive: runtime.GOOS == "windows"}
	default:
		return MapMerger{}
	}
}

// PairListMerger merges into the ordered []{name, value} representation.
// Merging finds and replaces by name instead of blindly appending, so keys
// are never duplicated or shadowed.
type PairListMerger struct {
	// CaseInsensitive matches names the way the platform's environment does
	CaseInsensitive bool
}

func (PairListMerger) Key() string { return "environment" }

func (m PairListMerger) Merge(existing any, entries []EnvEntry) any {
	merged := normalizePairs(existing)
	for _, entry := range entries {
		found := false
		for i := range merged {
			if m.sameName(merged[i].Name, entry.Name) {
				merged[i].Value = entry.Value
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, entry)
		}
	}
	return merged
}

func (m PairListMerger) sameName(a, b string) bool {
	if m.CaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// normalizePairs copies the existing value into []EnvEntry form, accepting
// both typed entries and the map shapes a decoded JSON config carries.
func normalizePairs(existing any) []EnvEntry {
	switch v := existing.(type) {
	case []EnvEntry:
		return append([]EnvEntry(nil), v...)
	case []any:
		var entries []EnvEntry
		for _, raw := range v {
			if pair, ok := raw.(map[string]any); ok {
				name, _ := pair["name"].(string)
				value, _ := pair["value"].(string)
				entries = append(entries, EnvEntry{Name: name, Value: value})
			}
		}
		return entries
	}
	return nil
}

// MapMerger merges into the flat key-to-value map representation.
type MapMerger struct{}

func (MapMerger) Key() string { return "env" }

func (MapMerger) Merge(existing any, entries []EnvEntry) any {
	merged := make(map[string]string)
	switch v := existing.(type) {
	case map[string]string:
		for k, val := range v {
			merged[k] = val
		}
	case map[string]any:
		for k, raw := range v {
			if val, ok := raw.(string); ok {
				merged[k] = val
			}
		}
	}
	for _, entry := range entries {
		merged[entry.Name] = entry.Value
	}
	return merged
}
