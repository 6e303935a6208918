package gallery

import (
	"fmt"
	"math"
)

// Sanitize converts v into a JSON-safe value: NaN and infinite floats
// become nil, maps and slices are sanitized recursively, primitives pass
// through, and anything else is stringified. The input is never mutated.
func Sanitize(v any) any {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return Sanitize(float64(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Sanitize(val)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// payload renders the entry as a JSON-safe map. The "type" key mirrors the
// wire format clients already consume.
func (e FileEntry) payload() map[string]any {
	return map[string]any{
		"name":      e.Name,
		"url":       e.URL,
		"timestamp": Sanitize(e.Timestamp),
		"date":      e.Date,
		"metadata":  Sanitize(e.Metadata),
		"type":      string(e.Kind),
	}
}

// Payload renders the snapshot as a JSON-safe map keyed by folder.
func (s Snapshot) Payload() map[string]any {
	folders := make(map[string]any, len(s))
	for folder, files := range s {
		fm := make(map[string]any, len(files))
		for name, entry := range files {
			fm[name] = entry.payload()
		}
		folders[folder] = fm
	}
	return folders
}

// Payload renders the diff as the JSON-safe push payload: a "folders" map
// of per-file change records tagged by action.
func (d Diff) Payload() map[string]any {
	folders := make(map[string]any, len(d))
	for folder, files := range d {
		fm := make(map[string]any, len(files))
		for name, change := range files {
			cm := map[string]any{"action": string(change.Action)}
			if change.Fields != nil {
				cm["fields"] = change.Fields.payload()
			}
			fm[name] = cm
		}
		folders[folder] = fm
	}
	return map[string]any{"folders": folders}
}
