// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
)

// Field names the pipeline itself attaches to decoded records.
const (
	FieldEntryID  = "qr_id"
	FieldTimeline = "timeline"
	// FieldOverride carries a raw QR's corrections on objective records so
	// values computed from the timeline can apply them later.
	FieldOverride = "override"
)

// Record is one decoded, typed document keyed by field name. Values are int,
// float64, bool, string, []any for scalar lists, or []TimelineEntry.
//
// Records are treated as immutable once produced: helpers that change fields
// return a new Record.
type Record map[string]any

// Clone returns a copy that shares no mutable slices with r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// With returns a copy of r with fields laid on top.
func (r Record) With(fields map[string]any) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(fields))
	}
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case []any:
		return slices.Clone(vv)
	case []TimelineEntry:
		return slices.Clone(vv)
	case map[string]any:
		return maps.Clone(vv)
	default:
		return v
	}
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

// Int reads key as an integer. Values that went through JSON (float64,
// json.Number) or arrived as numeric strings are accepted.
func (r Record) Int(key string) (int, bool) {
	return AsInt(r[key])
}

// String reads key as a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Bool reads key as a bool.
func (r Record) Bool(key string) (bool, bool) {
	b, ok := r[key].(bool)
	return b, ok
}

// AsInt converts the numeric shapes a Record value can take to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// AsFloat converts numeric Record values to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
