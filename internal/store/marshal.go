package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalEnv converts an environment to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled; map keys are sorted, so
// equal environments always produce equal text.
func MarshalEnv(env map[string]any) (string, error) {
	if len(env) == 0 {
		return "{}", nil
	}
	return marshalJSON(env)
}

// UnmarshalEnv parses stored environment JSON.
// Integers decode as int64 and other numbers as float64, so an
// environment survives a round trip with its integer values intact.
func UnmarshalEnv(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	var env map[string]any
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("unmarshal env: %w", err)
	}
	for k, v := range env {
		env[k] = normalizeNumbers(v)
	}
	return env, nil
}

// MarshalValue renders a return value for the runs.result column.
// A nil value is stored as "null".
func MarshalValue(v any) (string, error) {
	return marshalJSON(v)
}

func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// normalizeNumbers replaces json.Number with int64 or float64.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}
