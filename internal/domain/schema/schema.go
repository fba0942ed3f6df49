// Package schema holds the match collection QR schema: which single-letter
// code maps to which field, how each field is typed, and the enum tables used
// to expand compressed values.
//
// A Schema is immutable once loaded and safe for concurrent readers.
package schema

import (
	"fmt"
	"maps"
	"slices"
)

// Section names understood by the decoder.
const (
	SectionGeneric    = "generic_data"
	SectionObjective  = "objective_tim"
	SectionSubjective = "subjective_aim"
	SectionTimeline   = "timeline"
)

// Reserved section metadata keys.
const (
	MetaSeparator         = "_separator"
	MetaSectionSeparator  = "_section_separator"
	MetaStartCharacter    = "_start_character"
	MetaTeamSeparator     = "_team_separator"
	MetaAllianceSeparator = "_alliance_separator"
	MetaValidityMarkers   = "_validity_markers"
	MetaValidMarkerValues = "_valid_marker_values"
	MetaEntityCount       = "_entity_count"
)

// VersionField is the generic field carrying the producer's schema version.
const VersionField = "schema_version"

// Type is a schema-declared value type.
type Type string

const (
	TypeInt   Type = "int"
	TypeFloat Type = "float"
	TypeBool  Type = "bool"
	TypeStr   Type = "str"
	TypeEnum  Type = "Enum"
	TypeList  Type = "list"
	TypeDict  Type = "dict"
)

// Scalar reports whether t is a single-value type.
func (t Type) Scalar() bool {
	switch t {
	case TypeInt, TypeFloat, TypeBool, TypeStr, TypeEnum:
		return true
	default:
		return false
	}
}

// Field is one declared entry of a field section.
type Field struct {
	Name string
	Code string
	Type Type
	// Elem is the element type when Type is list.
	Elem Type
	// Width is the fixed element width for lists; zero means split on the
	// schema's list separator.
	Width int
}

// IsList reports whether the field holds a list of scalars.
func (f Field) IsList() bool { return f.Type == TypeList && f.Elem != TypeDict }

// IsNested reports whether the field holds a list of nested records.
func (f Field) IsNested() bool { return f.Type == TypeList && f.Elem == TypeDict }

// Section is an ordered set of fields plus the section's reserved metadata.
type Section struct {
	Name     string
	Fields   []Field
	meta     map[string]string
	metaList map[string][]string
	byCode   map[string]int
	byName   map[string]int
}

// Meta returns a reserved scalar value such as "_separator".
func (s *Section) Meta(key string) string { return s.meta[key] }

// MetaList returns a reserved list value such as "_validity_markers".
func (s *Section) MetaList(key string) []string { return slices.Clone(s.metaList[key]) }

// ByCode resolves a compressed code to its field.
func (s *Section) ByCode(code string) (Field, bool) {
	i, ok := s.byCode[code]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// ByName resolves a field name.
func (s *Section) ByName(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// TimelineField is one fixed-width column of a timeline entry.
type TimelineField struct {
	Name     string `yaml:"-"`
	Length   int    `yaml:"length"`
	Type     Type   `yaml:"type"`
	Position int    `yaml:"position"`
}

// Schema is a loaded, validated QR schema.
type Schema struct {
	Version       int
	ListSeparator string

	sections map[string]*Section

	// Timeline columns ordered by position.
	Timeline []TimelineField
	// PhaseTransition names the action that starts teleop.
	PhaseTransition string
	// TimelineCounts lists record fields derived from the timeline.
	TimelineCounts []string

	// enums maps table -> code -> name.
	enums map[string]map[string]string
	// enumCodes maps table -> name -> code.
	enumCodes map[string]map[string]string
}

// Section returns the named field section.
func (s *Schema) Section(name string) (*Section, bool) {
	sec, ok := s.sections[name]
	return sec, ok
}

// MustSection is Section for names validated at load time.
func (s *Schema) MustSection(name string) *Section {
	sec, ok := s.sections[name]
	if !ok {
		panic(fmt.Sprintf("schema: section %q not loaded", name))
	}
	return sec
}

// EnumName reverse-looks-up code in table.
func (s *Schema) EnumName(table, code string) (string, bool) {
	t, ok := s.enums[table]
	if !ok {
		return "", false
	}
	name, ok := t[code]
	return name, ok
}

// EnumCode returns the compressed code of name in table.
func (s *Schema) EnumCode(table, name string) (string, bool) {
	t, ok := s.enumCodes[table]
	if !ok {
		return "", false
	}
	code, ok := t[name]
	return code, ok
}

// EnumNames lists the names of table in sorted order.
func (s *Schema) EnumNames(table string) []string {
	return slices.Sorted(maps.Keys(s.enumCodes[table]))
}

// FieldNames returns the union of declared field names across sections.
func (s *Schema) FieldNames(sections ...string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range sections {
		sec, ok := s.sections[name]
		if !ok {
			continue
		}
		for _, f := range sec.Fields {
			out[f.Name] = struct{}{}
		}
	}
	return out
}

// TimelineWidth is the byte width of one timeline entry.
func (s *Schema) TimelineWidth() int {
	w := 0
	for _, f := range s.Timeline {
		w += f.Length
	}
	return w
}

// StartCharacter returns the QR start character for a kind section.
func (s *Schema) StartCharacter(section string) string {
	sec, ok := s.sections[section]
	if !ok {
		return ""
	}
	return sec.Meta(MetaStartCharacter)
}

// OverrideExempt reports whether name belongs to the nested timeline
// structure (the container, an entry column, or a derived count) and so must
// not be overridden at decode time.
func (s *Schema) OverrideExempt(name string) bool {
	for _, sec := range s.sections {
		if f, ok := sec.ByName(name); ok && f.IsNested() {
			return true
		}
	}
	for _, f := range s.Timeline {
		if f.Name == name {
			return true
		}
	}
	return slices.Contains(s.TimelineCounts, name)
}

// IsTimelineCount reports whether name is a count derived from the timeline.
func (s *Schema) IsTimelineCount(name string) bool {
	return slices.Contains(s.TimelineCounts, name)
}

// FieldByCode resolves code within section.
func (s *Schema) FieldByCode(section, code string) (Field, error) {
	sec, ok := s.sections[section]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	f, ok := sec.ByCode(code)
	if !ok {
		return Field{}, fmt.Errorf("%w: %q in %s", ErrUnknownCode, code, section)
	}
	return f, nil
}

// FieldByName resolves name within section.
func (s *Schema) FieldByName(section, name string) (Field, error) {
	sec, ok := s.sections[section]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	f, ok := sec.ByName(name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %q in %s", ErrUnknownField, name, section)
	}
	return f, nil
}

// Sections lists the loaded field sections in sorted order.
func (s *Schema) Sections() []string {
	return slices.Sorted(maps.Keys(s.sections))
}

// EnumTables lists the loaded enum tables in sorted order.
func (s *Schema) EnumTables() []string {
	return slices.Sorted(maps.Keys(s.enums))
}
