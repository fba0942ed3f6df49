package consolidate

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrUnknownPitField = errors.New("unknown pit field")
	ErrPitValue        = errors.New("invalid pit value")
	ErrMissingKey      = errors.New("missing consolidation key")
	ErrNoDocuments     = errors.New("no documents to consolidate")
	ErrUnknownPolicy   = errors.New("unknown conflict policy")
)
