package audit

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrIgnoreList     = errors.New("invalid ignore list")
	ErrWatcherStarted = errors.New("ignore watcher already started")
)
