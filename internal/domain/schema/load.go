package schema

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_schema.yml
var defaultSchemaYAML []byte

// Top-level keys that are not enum tables.
const (
	keySchemaFile     = "schema_file"
	keyListSeparator  = "_list_data_separator"
	keyTimelineCounts = "timeline_counts"
	keyPhaseAction    = "_phase_transition_action"
)

// EnumActionType is the enum table timeline actions are drawn from.
const EnumActionType = "action_type"

const defaultPhaseTransition = "to_teleop"

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the embedded match collection schema.
// It panics if the embedded file is invalid, which a unit test guards.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Parse(defaultSchemaYAML)
		if err != nil {
			panic(err)
		}
		defaultSchema = s
	})
	return defaultSchema
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaLoad, path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse builds a Schema from YAML. Field order within sections is kept as
// written.
func Parse(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaLoad, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document is not a mapping", ErrSchemaLoad)
	}

	s := &Schema{
		ListSeparator: ",",
		sections:      make(map[string]*Section),
		enums:         make(map[string]map[string]string),
		enumCodes:     make(map[string]map[string]string),
	}
	var versionSeen bool

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]

		var err error
		switch key {
		case keySchemaFile:
			var sf struct {
				Version *int `yaml:"version"`
			}
			if err = val.Decode(&sf); err == nil && sf.Version != nil {
				s.Version = *sf.Version
				versionSeen = true
			}
		case keyListSeparator:
			s.ListSeparator = val.Value
		case SectionGeneric, SectionObjective, SectionSubjective:
			var sec *Section
			sec, err = parseSection(key, val)
			if err == nil {
				s.sections[key] = sec
			}
		case SectionTimeline:
			err = s.parseTimeline(val)
		case keyTimelineCounts:
			err = val.Decode(&s.TimelineCounts)
		default:
			err = s.parseEnum(key, val)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSchemaLoad, key, err)
		}
	}

	if !versionSeen {
		return nil, fmt.Errorf("%w: schema_file.version is required", ErrSchemaLoad)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaLoad, err)
	}
	return s, nil
}

func parseSection(name string, node *yaml.Node) (*Section, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("section must be a mapping")
	}
	sec := &Section{
		Name:     name,
		meta:     make(map[string]string),
		metaList: make(map[string][]string),
		byCode:   make(map[string]int),
		byName:   make(map[string]int),
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]

		if strings.HasPrefix(key, "_") {
			switch val.Kind {
			case yaml.ScalarNode:
				sec.meta[key] = val.Value
			case yaml.SequenceNode:
				items, err := scalars(val)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				sec.metaList[key] = items
			default:
				return nil, fmt.Errorf("%s: unsupported metadata value", key)
			}
			continue
		}

		f, err := parseField(key, val)
		if err != nil {
			return nil, err
		}
		if _, dup := sec.byCode[f.Code]; dup {
			return nil, fmt.Errorf("duplicate code %q (%s)", f.Code, key)
		}
		if _, dup := sec.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		sec.byCode[f.Code] = len(sec.Fields)
		sec.byName[f.Name] = len(sec.Fields)
		sec.Fields = append(sec.Fields, f)
	}
	return sec, nil
}

// parseField reads [code, type], [code, list, elem] or [code, list, elem, width].
func parseField(name string, node *yaml.Node) (Field, error) {
	items, err := scalars(node)
	if err != nil {
		return Field{}, fmt.Errorf("%s: %w", name, err)
	}
	if len(items) < 2 || len(items) > 4 {
		return Field{}, fmt.Errorf("%s: want 2 to 4 entries, got %d", name, len(items))
	}

	f := Field{Name: name, Code: items[0], Type: Type(items[1])}
	if len(f.Code) != 1 {
		return Field{}, fmt.Errorf("%s: code %q must be a single character", name, f.Code)
	}

	if f.Type != TypeList {
		if len(items) != 2 {
			return Field{}, fmt.Errorf("%s: only list fields take an element type", name)
		}
		if !f.Type.Scalar() {
			return Field{}, fmt.Errorf("%s: unsupported type %q", name, f.Type)
		}
		return f, nil
	}

	if len(items) < 3 {
		return Field{}, fmt.Errorf("%s: list field needs an element type", name)
	}
	f.Elem = Type(items[2])
	if f.Elem != TypeDict && !f.Elem.Scalar() {
		return Field{}, fmt.Errorf("%s: unsupported element type %q", name, f.Elem)
	}
	if len(items) == 4 {
		w, err := strconv.Atoi(items[3])
		if err != nil || w <= 0 {
			return Field{}, fmt.Errorf("%s: invalid element width %q", name, items[3])
		}
		f.Width = w
	}
	return f, nil
}

func (s *Schema) parseTimeline(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("timeline must be a mapping")
	}
	s.PhaseTransition = defaultPhaseTransition
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if key == keyPhaseAction {
			s.PhaseTransition = val.Value
			continue
		}
		var tf TimelineField
		if err := val.Decode(&tf); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if tf.Length <= 0 {
			return fmt.Errorf("%s: length must be positive", key)
		}
		if !tf.Type.Scalar() {
			return fmt.Errorf("%s: unsupported type %q", key, tf.Type)
		}
		tf.Name = key
		s.Timeline = append(s.Timeline, tf)
	}
	slices.SortStableFunc(s.Timeline, func(a, b TimelineField) int { return a.Position - b.Position })
	return nil
}

func (s *Schema) parseEnum(name string, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("unknown key")
	}
	byCode := make(map[string]string, len(node.Content)/2)
	byName := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		member, code := node.Content[i].Value, node.Content[i+1]
		if code.Kind != yaml.ScalarNode {
			return fmt.Errorf("%s: enum code must be a scalar", member)
		}
		if prev, dup := byCode[code.Value]; dup {
			return fmt.Errorf("code %q shared by %s and %s", code.Value, prev, member)
		}
		byCode[code.Value] = member
		byName[member] = code.Value
	}
	s.enums[name] = byCode
	s.enumCodes[name] = byName
	return nil
}

func (s *Schema) validate() error {
	if len(s.sections) == 0 {
		return fmt.Errorf("no field sections declared")
	}
	if _, ok := s.enums[EnumActionType]; !ok {
		return fmt.Errorf("enum table %q is required", EnumActionType)
	}
	if err := s.validateTimeline(); err != nil {
		return err
	}

	if gen, ok := s.sections[SectionGeneric]; ok {
		if gen.Meta(MetaSeparator) == "" || gen.Meta(MetaSectionSeparator) == "" {
			return fmt.Errorf("%s: _separator and _section_separator are required", SectionGeneric)
		}
	} else {
		return fmt.Errorf("section %s is required", SectionGeneric)
	}

	starts := make(map[string]string)
	for _, name := range []string{SectionObjective, SectionSubjective} {
		sec, ok := s.sections[name]
		if !ok {
			continue
		}
		start := sec.Meta(MetaStartCharacter)
		if len(start) != 1 || sec.Meta(MetaSeparator) == "" {
			return fmt.Errorf("%s: single _start_character and _separator are required", name)
		}
		if other, dup := starts[start]; dup {
			return fmt.Errorf("%s and %s share start character %q", other, name, start)
		}
		starts[start] = name
	}
	if len(starts) == 0 {
		return fmt.Errorf("at least one of %s or %s is required", SectionObjective, SectionSubjective)
	}

	if sub, ok := s.sections[SectionSubjective]; ok {
		if sub.Meta(MetaTeamSeparator) == "" {
			return fmt.Errorf("%s: _team_separator is required", SectionSubjective)
		}
		for _, code := range sub.MetaList(MetaValidityMarkers) {
			if _, ok := sub.ByCode(code); !ok {
				return fmt.Errorf("%s: validity marker %q is not a field code", SectionSubjective, code)
			}
		}
	}

	for _, sec := range s.sections {
		for _, f := range sec.Fields {
			if (f.Type == TypeEnum || f.Elem == TypeEnum) && !s.hasEnum(f.Name) {
				return fmt.Errorf("%s.%s: no enum table named %q", sec.Name, f.Name, f.Name)
			}
		}
	}
	return nil
}

func (s *Schema) validateTimeline() error {
	if len(s.Timeline) == 0 {
		return fmt.Errorf("timeline section is required")
	}
	var haveTime, haveAction bool
	for _, f := range s.Timeline {
		switch {
		case f.Name == "time" && f.Type == TypeInt:
			haveTime = true
		case f.Name == EnumActionType && f.Type == TypeEnum:
			haveAction = true
		default:
			return fmt.Errorf("timeline.%s: unsupported column", f.Name)
		}
	}
	if !haveTime || !haveAction {
		return fmt.Errorf("timeline must declare time (int) and action_type (Enum)")
	}
	if _, ok := s.EnumCode(EnumActionType, s.PhaseTransition); !ok {
		return fmt.Errorf("phase transition action %q is not an %s", s.PhaseTransition, EnumActionType)
	}
	return nil
}

func (s *Schema) hasEnum(table string) bool {
	_, ok := s.enums[table]
	return ok
}

func scalars(node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]string, 0, len(node.Content))
	for _, n := range node.Content {
		if n.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("expected scalar entries")
		}
		out = append(out, n.Value)
	}
	return out, nil
}
