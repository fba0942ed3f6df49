package model

// TimelineEntry is one timestamped action from an objective scout's timeline.
// InTeleop is derived during decoding, never read from the wire.
type TimelineEntry struct {
	Time       int    `json:"time"`
	ActionType string `json:"action_type"`
	InTeleop   bool   `json:"in_teleop"`
}
