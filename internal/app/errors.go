package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrUnknownPitKind  = errors.New("unknown pit kind")
	ErrUnknownTIMKind  = errors.New("unknown tim kind")
	ErrBackpressure    = errors.New("pit queue full")
	ErrInvalidOverride = errors.New("invalid override")
	ErrCorruptRawQR    = errors.New("corrupt raw qr document")
)
