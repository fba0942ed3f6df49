// Package coerce turns wire tokens into typed values according to a schema
// type tag.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/scout/internal/domain/schema"
)

// Enums resolves compressed enum codes. *schema.Schema satisfies it.
type Enums interface {
	EnumName(table, code string) (string, bool)
}

// Coerce converts raw to the Go value for tag. Enum tokens are looked up in
// enumTable.
func Coerce(raw string, tag schema.Type, enumTable string, enums Enums) (any, error) {
	switch tag {
	case schema.TypeInt:
		i, err := Int(raw)
		if err != nil {
			return nil, err
		}
		return i, nil
	case schema.TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrTypeCoercion, raw)
		}
		return f, nil
	case schema.TypeBool:
		return Bool(raw), nil
	case schema.TypeStr:
		return raw, nil
	case schema.TypeEnum:
		if enums == nil {
			return nil, fmt.Errorf("%w: no enum tables for %s", ErrEnumLookup, enumTable)
		}
		name, ok := enums.EnumName(enumTable, raw)
		if !ok {
			return nil, fmt.Errorf("%w: code %q not in %s", ErrEnumLookup, raw, enumTable)
		}
		return name, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, tag)
	}
}

// Int parses a base-10 integer. Decimal tokens truncate toward zero.
func Int(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || !strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("%w: %q is not an int", ErrTypeCoercion, raw)
	}
	return int(math.Trunc(f)), nil
}

// Bool reports whether raw is one of "1", "T" or "TRUE", ignoring case.
// Every other token is false.
func Bool(raw string) bool {
	switch strings.ToUpper(raw) {
	case "1", "T", "TRUE":
		return true
	default:
		return false
	}
}

// List splits raw into elements and coerces each to elem. A positive width
// chunks raw into fixed-size pieces; otherwise raw is split on sep. An empty
// raw yields an empty list.
func List(raw string, elem schema.Type, sep string, width int, enumTable string, enums Enums) ([]any, error) {
	if raw == "" {
		return []any{}, nil
	}

	var parts []string
	if width > 0 {
		for i := 0; i < len(raw); i += width {
			parts = append(parts, raw[i:min(i+width, len(raw))])
		}
	} else {
		parts = strings.Split(raw, sep)
	}

	out := make([]any, 0, len(parts))
	for i, p := range parts {
		v, err := Coerce(p, elem, enumTable, enums)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
