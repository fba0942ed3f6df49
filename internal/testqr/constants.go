package testqr

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

// Submitter configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	// VerifyTimeout bounds how long verification polls for stored records.
	VerifyTimeout = 30 * time.Second
	verifyPoll    = 250 * time.Millisecond
)
