package unifi

import (
	"encoding/json"
	"log/slog"
)

// Raw is a controller resource in its native shape: a JSON object with
// whatever fields this controller version emits. Managers read the
// handful of fields they care about through the typed accessors below
// and pass the rest through untouched, which is what makes
// merge-before-PUT updates possible without modeling every field.
type Raw = map[string]any

// NormalizeList coerces a controller payload into a list of objects.
// Controller versions disagree on the shape: some endpoints return a
// bare array, some wrap it in {"data": [...]}, and a few return a
// single object. Anything else is logged and treated as an empty list;
// callers on this surface prefer an impoverished-but-valid default
// over a hard failure.
func NormalizeList(payload json.RawMessage, logger *slog.Logger) []Raw {
	if len(payload) == 0 {
		return nil
	}

	var list []Raw
	if err := json.Unmarshal(payload, &list); err == nil {
		return list
	}

	var envelope struct {
		Data []Raw `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data
	}

	var single Raw
	if err := json.Unmarshal(payload, &single); err == nil && len(single) > 0 {
		return []Raw{single}
	}

	if logger != nil {
		logger.Warn("unrecognized controller payload shape, treating as empty list",
			"payload_prefix", truncate(string(payload), 120))
	}
	return nil
}

// FirstObject unwraps a create/update response down to the affected
// object: a bare object, the first element of an array, or the first
// element of an envelope's data array.
func FirstObject(payload json.RawMessage, logger *slog.Logger) Raw {
	list := NormalizeList(payload, logger)
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// Merge returns a copy of base with every key from updates laid over
// it. The controller requires whole-resource PUTs: a partial PUT
// silently clears every field it omits, so updates must always travel
// as the full original object plus the changed fields.
func Merge(base, updates Raw) Raw {
	merged := make(Raw, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// String returns the string value of key, or fallback when absent or
// not a string.
func String(obj Raw, key, fallback string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return fallback
}

// Bool returns the bool value of key, or fallback when absent.
func Bool(obj Raw, key string, fallback bool) bool {
	if v, ok := obj[key].(bool); ok {
		return v
	}
	return fallback
}

// Int returns the integer value of key, or fallback when absent.
// JSON numbers decode as float64, so both representations are accepted.
func Int(obj Raw, key string, fallback int) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// ObjectField returns the nested object at key, or nil when the field
// is absent or not an object.
func ObjectField(obj Raw, key string) Raw {
	if v, ok := obj[key].(Raw); ok {
		return v
	}
	return nil
}

// ListField returns the array of objects at key. Elements that are not
// objects are skipped.
func ListField(obj Raw, key string) []Raw {
	items, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Raw, 0, len(items))
	for _, item := range items {
		if m, ok := item.(Raw); ok {
			out = append(out, m)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
