package model

// Kind identifies which of the two match collection QR layouts a payload uses.
type Kind int

const (
	KindUnknown Kind = iota
	// KindObjective is one scout watching one team for a whole match.
	KindObjective
	// KindSubjective is one scout rating the three teams of an alliance.
	KindSubjective
)

func (k Kind) String() string {
	switch k {
	case KindObjective:
		return "objective"
	case KindSubjective:
		return "subjective"
	default:
		return "unknown"
	}
}

// RawQR is a scanned QR code as it sits in raw storage.
type RawQR struct {
	ID           string         `json:"qr_id"`
	Data         string         `json:"data"`
	Blocklisted  bool           `json:"blocklisted"`
	Override     map[string]any `json:"override"`
	ReadableTime string         `json:"readable_time"`
}

// PitKind names the two pit scouting collections.
type PitKind string

const (
	PitObjective  PitKind = "obj_pit"
	PitSubjective PitKind = "subj_pit"
)

// Valid reports whether k is one of the known pit kinds.
func (k PitKind) Valid() bool {
	return k == PitObjective || k == PitSubjective
}

// PitSubmission is one pit scout's raw observation of a team's robot.
type PitSubmission struct {
	ID   string         `json:"id"`
	Kind PitKind        `json:"kind"`
	Data map[string]any `json:"data"`
}
