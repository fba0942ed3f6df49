package schema

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrSchemaLoad        = errors.New("schema load failed")
	ErrPitSchemaLoad     = errors.New("pit schema load failed")
	ErrUnknownSection    = errors.New("unknown schema section")
	ErrUnknownCode       = errors.New("unknown field code")
	ErrUnknownField      = errors.New("unknown field name")
	ErrUnknownCollection = errors.New("unknown pit collection")
)
