package repository

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"

	"github.com/okian/scout/internal/domain/model"
)

// Match reports whether rec satisfies every condition in f.
func (f Filter) Match(rec model.Record) bool {
	for k, want := range f {
		got, ok := rec[k]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	fa, aNum := model.AsFloat(a)
	fb, bNum := model.AsFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// copyRecord deep-copies the container shapes a document can hold.
func copyRecord(r model.Record) model.Record {
	if r == nil {
		return model.Record{}
	}
	out := make(model.Record, len(r))
	for k, v := range r {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = copyValue(e)
		}
		return out
	case model.Record:
		return copyRecord(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = copyValue(e)
		}
		return out
	case []model.TimelineEntry:
		return slices.Clone(vv)
	default:
		return v
	}
}

// fromJSON turns json.Number values into int when integral and float64
// otherwise, recursing into objects and arrays.
func fromJSON(v any) any {
	switch vv := v.(type) {
	case json.Number:
		if i, err := vv.Int64(); err == nil {
			return int(i)
		}
		f, err := vv.Float64()
		if err != nil {
			return vv.String()
		}
		return f
	case map[string]any:
		for k, e := range vv {
			vv[k] = fromJSON(e)
		}
		return vv
	case []any:
		for i, e := range vv {
			vv[i] = fromJSON(e)
		}
		return vv
	default:
		return v
	}
}

func collectionSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func sortedCollections(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}
