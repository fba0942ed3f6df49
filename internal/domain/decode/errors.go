package decode

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")
	ErrIncompleteRecord      = errors.New("incomplete record")
	ErrEntityCount           = errors.New("wrong entity count")
	ErrUnknownKind           = errors.New("unknown qr kind")
	ErrUnsupportedNestedType = errors.New("unsupported nested type")
	ErrTimelineLength        = errors.New("invalid timeline length")
	ErrMalformedToken        = errors.New("malformed token")
)

// VersionMismatchError reports a QR produced against another schema version.
type VersionMismatchError struct {
	Got  int
	Want int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("qr schema v%d does not match server schema v%d", e.Got, e.Want)
}

// Is makes errors.Is(err, ErrSchemaVersionMismatch) hold.
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrSchemaVersionMismatch
}
