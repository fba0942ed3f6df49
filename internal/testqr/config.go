package testqr

import "time"

// Config holds configuration for the QR load test.
type Config struct {
	BaseURL        string        // Base URL of the service
	SchemaPath     string        // Match schema the codes follow; empty uses the embedded one
	Matches        int           // Number of matches to generate
	FirstMatch     int           // Match number of the first generated match
	ScoutsPerMatch int           // Objective scouts per match, ids 1..N
	BatchSize      int           // QRs per POST /qrs request
	Workers        int           // Number of concurrent submitters
	Duplicates     float64       // Fraction of QRs submitted a second time
	Seed           uint64        // Seed for the generator; zero picks one
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Output file for generated QRs
	LogFile        string        // Log file for test output
	Verbose        bool          // Enable verbose logging
}

// Match is one generated match: the teams on the field and every QR the
// scouts would have produced for it.
type Match struct {
	Number     int      `json:"match_number"`
	Red        []string `json:"red"`
	Blue       []string `json:"blue"`
	Objective  []string `json:"objective"`
	Subjective []string `json:"subjective"`
}

// QRs returns the match's codes, objective first.
func (m Match) QRs() []string {
	out := make([]string, 0, len(m.Objective)+len(m.Subjective))
	out = append(out, m.Objective...)
	return append(out, m.Subjective...)
}

// SubmitResponse mirrors the body of POST /qrs.
type SubmitResponse struct {
	Accepted   []string `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Invalid    []string `json:"invalid"`
}

// PassResponse mirrors the parts of POST /passes the test checks.
type PassResponse struct {
	Processed  int `json:"processed"`
	Objective  int `json:"objective"`
	Subjective int `json:"subjective"`
	Failures   []struct {
		ID     string `json:"qr_id"`
		Reason string `json:"reason"`
	} `json:"failures"`
	Warnings []map[string]any `json:"warnings"`
}

// Stats holds test statistics.
type Stats struct {
	QRsGenerated     int
	QRsSubmitted     int
	QRsAccepted      int
	QRsDuplicate     int
	QRsInvalid       int
	RequestsFailed   int
	PassProcessed    int
	PassFailures     int
	ObjectiveStored  int
	SubjectiveStored int
	AuditWarnings    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
