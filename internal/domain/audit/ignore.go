package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// IgnoreEntry silences a whole match, or one scout id within a match.
type IgnoreEntry struct {
	MatchNumber *int `yaml:"match_number"`
	ScoutID     *int `yaml:"scout_id"`
}

type pair struct {
	match int
	scout int
}

// IgnoreList is an immutable set of suppressed matches and match/scout pairs.
// The zero value and nil suppress nothing.
type IgnoreList struct {
	matches map[int]struct{}
	pairs   map[pair]struct{}
	size    int
}

// NewIgnoreList builds a list from entries.
func NewIgnoreList(entries []IgnoreEntry) (*IgnoreList, error) {
	l := &IgnoreList{
		matches: make(map[int]struct{}),
		pairs:   make(map[pair]struct{}),
	}
	for i, e := range entries {
		if e.MatchNumber == nil {
			return nil, fmt.Errorf("%w: entry %d has no match_number", ErrIgnoreList, i)
		}
		if e.ScoutID == nil {
			l.matches[*e.MatchNumber] = struct{}{}
		} else {
			l.pairs[pair{match: *e.MatchNumber, scout: *e.ScoutID}] = struct{}{}
		}
	}
	l.size = len(l.matches) + len(l.pairs)
	return l, nil
}

// Match reports whether every warning for match is suppressed.
func (l *IgnoreList) Match(match int) bool {
	if l == nil {
		return false
	}
	_, ok := l.matches[match]
	return ok
}

// Pair reports whether warnings for scout in match are suppressed.
func (l *IgnoreList) Pair(match, scout int) bool {
	if l == nil {
		return false
	}
	_, ok := l.pairs[pair{match: match, scout: scout}]
	return ok
}

// Len returns the number of distinct entries.
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return l.size
}

// ParseIgnoreList reads a YAML list of {match_number[, scout_id]} entries.
func ParseIgnoreList(data []byte) (*IgnoreList, error) {
	var entries []IgnoreEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIgnoreList, err)
	}
	return NewIgnoreList(entries)
}

// LoadIgnoreList reads path. A missing file is an empty list.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewIgnoreList(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIgnoreList, path, err)
	}
	l, err := ParseIgnoreList(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
