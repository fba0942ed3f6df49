package coerce

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrTypeCoercion    = errors.New("type coercion failed")
	ErrEnumLookup      = errors.New("enum lookup failed")
	ErrUnsupportedType = errors.New("unsupported type")
)
