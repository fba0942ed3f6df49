package repository

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotFound          = errors.New("document not found")
	ErrEmptyKey          = errors.New("empty document key")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrClosed            = errors.New("store closed")
	ErrEncode            = errors.New("encode document")
	ErrDecode            = errors.New("decode document")
	ErrInvalidWrite      = errors.New("invalid write")
)
