package structured

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DecodeObject extracts, repairs and strictly decodes the JSON object in raw,
// then checks that every required top-level key is present.
func DecodeObject(raw string, required ...string) (map[string]json.RawMessage, error) {
	repaired, err := repairedObject(raw)
	if err != nil {
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(repaired, &obj); err != nil {
		return nil, fmt.Errorf("%w: invalid syntax: %w", ErrMalformedStructure, err)
	}
	if missing := missingKeys(obj, required); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields %v", ErrMalformedStructure, missing)
	}

	return obj, nil
}

// Decode is DecodeObject followed by decoding into T and struct validation.
// A field of the wrong JSON type is a malformed structure, not a panic or a
// zero value.
func Decode[T any](raw string, required ...string) (T, error) {
	var out T

	repaired, err := repairedObject(raw)
	if err != nil {
		return out, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(repaired, &obj); err != nil {
		return out, fmt.Errorf("%w: invalid syntax: %w", ErrMalformedStructure, err)
	}
	if missing := missingKeys(obj, required); len(missing) > 0 {
		return out, fmt.Errorf("%w: missing required fields %v", ErrMalformedStructure, missing)
	}

	if err := json.Unmarshal(repaired, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedStructure, err)
	}
	if err := Validate(out); err != nil {
		return out, err
	}

	return out, nil
}

func repairedObject(raw string) ([]byte, error) {
	region, err := ExtractObject(raw)
	if err != nil {
		return nil, err
	}
	return []byte(Repair(region)), nil
}

func missingKeys(obj map[string]json.RawMessage, required []string) []string {
	var missing []string
	for _, k := range required {
		v, ok := obj[k]
		if !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}
