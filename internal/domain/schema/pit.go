package schema

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed pit_schema.yml
var defaultPitSchemaYAML []byte

// DefaultSet selects which placeholder values complete a record.
type DefaultSet string

const (
	// DefaultsPit fills 0, false, "" and the field's sentinel for enums.
	DefaultsPit DefaultSet = "pit"
	// DefaultsTeam fills -1, false, "" for per-team superscout records.
	DefaultsTeam DefaultSet = "team"
	// DefaultsTim fills 0, false, "" for per-team-in-match superscout records.
	DefaultsTim DefaultSet = "tim"
)

// PitField is one field of a consolidated collection.
type PitField struct {
	Name string
	Type Type
	// Sentinel marks a string or enum value as "not collected".
	Sentinel string
	// Enum names the enum table; defaults to the field name.
	Enum string
}

// Default returns the placeholder for the field under set.
func (f PitField) Default(set DefaultSet) any {
	switch f.Type {
	case TypeBool:
		return false
	case TypeInt:
		if set == DefaultsTeam {
			return -1
		}
		return 0
	case TypeFloat:
		if set == DefaultsTeam {
			return -1.0
		}
		return 0.0
	default:
		return f.Sentinel
	}
}

// Collection describes one consolidated document collection.
type Collection struct {
	Name     string
	Key      []string
	Defaults DefaultSet
	Fields   []PitField
	enums    map[string]map[string]int
	byName   map[string]int
}

// Field looks a field up by name.
func (c *Collection) Field(name string) (PitField, bool) {
	i, ok := c.byName[name]
	if !ok {
		return PitField{}, false
	}
	return c.Fields[i], true
}

// EnumName maps an enum integer to its name for field.
func (c *Collection) EnumName(field PitField, value int) (string, bool) {
	for name, v := range c.enums[field.Enum] {
		if v == value {
			return name, true
		}
	}
	return "", false
}

// EnumValue maps an enum name to its integer for field.
func (c *Collection) EnumValue(field PitField, name string) (int, bool) {
	v, ok := c.enums[field.Enum][name]
	return v, ok
}

// PitSchema holds every consolidated collection definition.
type PitSchema struct {
	collections map[string]*Collection
}

// Collection returns the named collection.
func (p *PitSchema) Collection(name string) (*Collection, error) {
	c, ok := p.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Collections lists collection names in sorted order.
func (p *PitSchema) Collections() []string {
	return slices.Sorted(maps.Keys(p.collections))
}

var (
	defaultPitOnce   sync.Once
	defaultPitSchema *PitSchema
)

// DefaultPit returns the embedded pit schema.
func DefaultPit() *PitSchema {
	defaultPitOnce.Do(func() {
		p, err := ParsePit(defaultPitSchemaYAML)
		if err != nil {
			panic(err)
		}
		defaultPitSchema = p
	})
	return defaultPitSchema
}

// LoadPit reads and parses a pit schema file.
func LoadPit(path string) (*PitSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPitSchemaLoad, path, err)
	}
	p, err := ParsePit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

type rawPitField struct {
	Type     Type   `yaml:"type"`
	Sentinel string `yaml:"sentinel"`
	Enum     string `yaml:"enum"`
}

type rawCollection struct {
	Key      []string                  `yaml:"key"`
	Defaults DefaultSet                `yaml:"defaults"`
	Fields   map[string]rawPitField    `yaml:"fields"`
	Enums    map[string]map[string]int `yaml:"enums"`
}

// ParsePit builds a PitSchema from YAML.
func ParsePit(data []byte) (*PitSchema, error) {
	var raw struct {
		Collections map[string]rawCollection `yaml:"collections"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPitSchemaLoad, err)
	}
	if len(raw.Collections) == 0 {
		return nil, fmt.Errorf("%w: no collections declared", ErrPitSchemaLoad)
	}

	p := &PitSchema{collections: make(map[string]*Collection, len(raw.Collections))}
	for name, rc := range raw.Collections {
		c, err := buildCollection(name, rc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPitSchemaLoad, name, err)
		}
		p.collections[name] = c
	}
	return p, nil
}

func buildCollection(name string, rc rawCollection) (*Collection, error) {
	if len(rc.Key) == 0 {
		return nil, fmt.Errorf("key is required")
	}
	switch rc.Defaults {
	case "":
		rc.Defaults = DefaultsPit
	case DefaultsPit, DefaultsTeam, DefaultsTim:
	default:
		return nil, fmt.Errorf("unknown defaults %q", rc.Defaults)
	}

	c := &Collection{
		Name:     name,
		Key:      rc.Key,
		Defaults: rc.Defaults,
		enums:    rc.Enums,
		byName:   make(map[string]int, len(rc.Fields)),
	}
	for _, fname := range slices.Sorted(maps.Keys(rc.Fields)) {
		rf := rc.Fields[fname]
		if !rf.Type.Scalar() {
			return nil, fmt.Errorf("%s: unsupported type %q", fname, rf.Type)
		}
		f := PitField{Name: fname, Type: rf.Type, Sentinel: rf.Sentinel, Enum: rf.Enum}
		if f.Type == TypeEnum {
			if f.Enum == "" {
				f.Enum = fname
			}
			if _, ok := rc.Enums[f.Enum]; !ok {
				return nil, fmt.Errorf("%s: no enum table %q", fname, f.Enum)
			}
		}
		c.byName[fname] = len(c.Fields)
		c.Fields = append(c.Fields, f)
	}
	for _, k := range c.Key {
		if _, ok := c.byName[k]; !ok {
			return nil, fmt.Errorf("key field %q is not declared", k)
		}
	}
	return c, nil
}

// KeyOf renders the consolidation key of a document, e.g. "team_number=1678".
func (c *Collection) KeyOf(doc map[string]any) (string, bool) {
	parts := make([]string, 0, len(c.Key))
	for _, k := range c.Key {
		v, ok := doc[k]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ","), true
}
