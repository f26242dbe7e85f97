package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Documents arrive as untyped maps decoded from JSON, so numbers can be
// float64, json.Number or plain ints depending on the backend.

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse("2006-01-02", raw)
	if err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, err
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(fields map[string]any, key string) (int, error) {
	switch v := fields[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(math.Round(v)), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, fmt.Errorf("field %s: %w", key, err)
			}
			return int(math.Round(f)), nil
		}
		return int(n), nil
	case string:
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s: unexpected type %T", key, v)
	}
}

func timeField(fields map[string]any, key string) (time.Time, error) {
	raw := stringField(fields, key)
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t, nil
}

func mapField(fields map[string]any, key string) map[string]any {
	if v, ok := fields[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

type fieldReader struct {
	fields map[string]any
	err    error
}

func (r *fieldReader) int(key string) int {
	if r.err != nil {
		return 0
	}
	v, err := intField(r.fields, key)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) time(key string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, err := timeField(r.fields, key)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) string(key string) string {
	return stringField(r.fields, key)
}
