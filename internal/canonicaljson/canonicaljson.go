// Package canonicaljson produces deterministic JSON encodings by recursively
// sorting map keys, so that logically equivalent values always hash to the
// same digest. It backs the session
// report's content-addressed attestation hash.
package canonicaljson

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal converts a value to deterministic JSON by normalizing any maps in
// its structure into sorted-key form before encoding.
func Marshal(v interface{}) ([]byte, error) {
	normalized, err := normalizeValue(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return data, nil
}

// normalizeValue recursively converts maps to sorted representations. Struct
// values are round-tripped through json.Marshal/Unmarshal into map[string]any
// first, since canonical ordering only matters once a value reaches its JSON
// object representation.
func normalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeSortedMap(val)

	case []interface{}:
		normalized := make([]interface{}, len(val))
		for i, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			normalized[i] = n
		}
		return normalized, nil

	case nil, bool, string, float64, int, int64:
		return val, nil

	default:
		// Struct, pointer, or other JSON-marshalable type: round-trip through
		// a generic representation so nested maps get sorted too.
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal intermediate value: %w", err)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intermediate value: %w", err)
		}
		if _, ok := generic.(map[string]interface{}); ok {
			return normalizeValue(generic)
		}
		if _, ok := generic.([]interface{}); ok {
			return normalizeValue(generic)
		}
		return generic, nil
	}
}

// sortedMap is a JSON-marshalable type that preserves explicit key ordering.
type sortedMap struct {
	keys   []string
	values map[string]interface{}
}

func (sm *sortedMap) MarshalJSON() ([]byte, error) {
	if len(sm.keys) == 0 {
		return []byte("{}"), nil
	}

	result := "{"
	for i, key := range sm.keys {
		if i > 0 {
			result += ","
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		valJSON, err := json.Marshal(sm.values[key])
		if err != nil {
			return nil, err
		}

		result += string(keyJSON) + ":" + string(valJSON)
	}
	result += "}"

	return []byte(result), nil
}

func normalizeSortedMap(m map[string]interface{}) (*sortedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]interface{}, len(m))
	for _, k := range keys {
		n, err := normalizeValue(m[k])
		if err != nil {
			return nil, err
		}
		normalized[k] = n
	}

	return &sortedMap{
		keys:   keys,
		values: normalized,
	}, nil
}
