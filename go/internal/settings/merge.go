package settings

import (
	"encoding/json"
	"fmt"
)

// Merge lays a tenant's stored value over the defaults for an overlay type.
//
// The stored value may arrive as an already-decoded object or as a
// JSON-encoded string; "{}" and empty input mean "no custom settings". Merge
// guarantees that every key present in the defaults survives, that
// server-provided keys win, and that the nested objects named by the type's
// schema merge key-by-key instead of being replaced wholesale. A value that
// fails to decode leaves the defaults untouched and returns an error for
// logging; a partially-applied merge is never produced.
func Merge(t OverlayType, raw json.RawMessage) (Settings, error) {
	base := Defaults(t)

	partial, err := decodeValue(raw)
	if err != nil {
		return base, err
	}
	if len(partial) == 0 {
		return base, nil
	}

	schema := SchemaFor(t)
	merged := base.Clone()
	for key, val := range partial {
		if isNestedKey(schema, key) {
			merged[key] = mergeNested(base.Nested(key), val)
			continue
		}
		merged[key] = val
	}
	return merged, nil
}

// decodeValue handles both value encodings the settings API has shipped:
// a JSON object, or a string containing JSON.
func decodeValue(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var direct map[string]any
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("settings value is neither object nor string: %w", err)
	}
	if encoded == "" || encoded == "{}" {
		return nil, nil
	}

	var inner map[string]any
	if err := json.Unmarshal([]byte(encoded), &inner); err != nil {
		return nil, fmt.Errorf("decode encoded settings value: %w", err)
	}
	return inner, nil
}

func isNestedKey(s Schema, key string) bool {
	for _, k := range s.NestedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// mergeNested overlays the server's nested object on the default one. Keys
// the server omitted keep their defaults. A non-object server value falls
// back to the default object so a malformed payload cannot drop known keys.
func mergeNested(base map[string]any, val any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}

	over, ok := val.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
