// Package audit checks scout coverage: every match should carry exactly one
// observation per scout id in the expected range.
package audit

import (
	"fmt"
	"slices"

	"github.com/okian/scout/internal/domain/model"
)

// WarningKind classifies a coverage problem.
type WarningKind string

const (
	DuplicateObserver WarningKind = "duplicate_observer"
	MissingObserver   WarningKind = "missing_observer"
)

// Observation is one scout's record for one match.
type Observation struct {
	MatchNumber int
	ScoutID     int
}

// Warning is one coverage problem.
type Warning struct {
	Kind        WarningKind `json:"kind"`
	MatchNumber int         `json:"match_number"`
	ScoutID     int         `json:"scout_id"`
	// Count is how many observations carried ScoutID; zero when missing.
	Count int `json:"count"`
}

func (w Warning) String() string {
	if w.Kind == DuplicateObserver {
		return fmt.Sprintf("duplicate scout id %d for match %d (%d records)", w.ScoutID, w.MatchNumber, w.Count)
	}
	return fmt.Sprintf("scout id %d missing from match %d", w.ScoutID, w.MatchNumber)
}

// Range is the inclusive set of scout ids expected per match.
type Range struct {
	Min int
	Max int
}

// DefaultRange covers the eighteen objective scouts.
var DefaultRange = Range{Min: 1, Max: 18}

// ObservationsFrom extracts observations from decoded objective records.
// Records without a match number or scout id are ignored.
func ObservationsFrom(recs []model.Record) []Observation {
	out := make([]Observation, 0, len(recs))
	for _, r := range recs {
		match, ok := r.Int("match_number")
		if !ok {
			continue
		}
		id, ok := r.Int("scout_id")
		if !ok {
			continue
		}
		out = append(out, Observation{MatchNumber: match, ScoutID: id})
	}
	return out
}

// Audit groups observations by match and reports duplicate and missing scout
// ids. Warnings are ordered by match, then duplicates before missing ids,
// then by scout id. A nil ignore list suppresses nothing.
func Audit(obs []Observation, r Range, ignore *IgnoreList) []Warning {
	counts := make(map[int]map[int]int)
	for _, o := range obs {
		m, ok := counts[o.MatchNumber]
		if !ok {
			m = make(map[int]int)
			counts[o.MatchNumber] = m
		}
		m[o.ScoutID]++
	}

	matches := make([]int, 0, len(counts))
	for match := range counts {
		matches = append(matches, match)
	}
	slices.Sort(matches)

	var out []Warning
	for _, match := range matches {
		if ignore.Match(match) {
			continue
		}
		ids := counts[match]

		dupIDs := make([]int, 0)
		for id, n := range ids {
			if n > 1 {
				dupIDs = append(dupIDs, id)
			}
		}
		slices.Sort(dupIDs)
		for _, id := range dupIDs {
			if ignore.Pair(match, id) {
				continue
			}
			out = append(out, Warning{Kind: DuplicateObserver, MatchNumber: match, ScoutID: id, Count: ids[id]})
		}

		for id := r.Min; id <= r.Max; id++ {
			if ids[id] > 0 || ignore.Pair(match, id) {
				continue
			}
			out = append(out, Warning{Kind: MissingObserver, MatchNumber: match, ScoutID: id})
		}
	}
	return out
}
