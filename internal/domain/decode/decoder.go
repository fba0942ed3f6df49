// Package decode turns compressed match collection QR payloads into typed
// records using a loaded schema.
//
// A payload is one start character followed by a generic segment and a
// kind-specific segment joined by the section separator. Each segment is a
// list of tokens; a token is a one-character field code followed by its value.
package decode

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

const defaultEntityCount = 3

// Decoder decodes payloads against one schema. It holds no mutable state and
// is safe for concurrent use.
type Decoder struct {
	schema *schema.Schema
	log    logger.Logger

	generic      *schema.Section
	objective    *schema.Section
	subjective   *schema.Section
	objFields    map[string]struct{}
	subjFields   map[string]struct{}
	entityCount  int
	markers      []string
	markerValues []string
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for skipped entities.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// New builds a Decoder for s.
func New(s *schema.Schema, opts ...Option) *Decoder {
	d := &Decoder{
		schema:      s,
		log:         logger.Nop(),
		generic:     s.MustSection(schema.SectionGeneric),
		entityCount: defaultEntityCount,
	}
	for _, opt := range opts {
		opt(d)
	}

	if sec, ok := s.Section(schema.SectionObjective); ok {
		d.objective = sec
		d.objFields = s.FieldNames(schema.SectionGeneric, schema.SectionObjective)
	}
	if sec, ok := s.Section(schema.SectionSubjective); ok {
		d.subjective = sec
		d.subjFields = s.FieldNames(schema.SectionGeneric, schema.SectionSubjective)
		d.markers = sec.MetaList(schema.MetaValidityMarkers)
		d.markerValues = sec.MetaList(schema.MetaValidMarkerValues)
		if n, err := coerce.Int(sec.Meta(schema.MetaEntityCount)); err == nil && n > 0 {
			d.entityCount = n
		}
	}
	return d
}

// Schema returns the schema the decoder was built with.
func (d *Decoder) Schema() *schema.Schema { return d.schema }

// KindOf detects the QR layout from the payload's start character.
func (d *Decoder) KindOf(payload string) (model.Kind, error) {
	if payload == "" {
		return model.KindUnknown, fmt.Errorf("%w: empty payload", ErrUnknownKind)
	}
	first := payload[:1]
	switch {
	case d.objective != nil && first == d.objective.Meta(schema.MetaStartCharacter):
		return model.KindObjective, nil
	case d.subjective != nil && first == d.subjective.Meta(schema.MetaStartCharacter):
		return model.KindSubjective, nil
	default:
		return model.KindUnknown, fmt.Errorf("%w: start character %q", ErrUnknownKind, first)
	}
}

// DecodeQR detects the kind of payload and decodes it.
func (d *Decoder) DecodeQR(ctx context.Context, payload string) (model.Kind, []model.Record, error) {
	kind, err := d.KindOf(payload)
	if err != nil {
		return kind, nil, err
	}
	recs, err := d.Decode(ctx, kind, payload[1:])
	return kind, recs, err
}

// Decode decodes body, the payload without its start character. Objective
// payloads yield one record; subjective payloads yield one record per valid
// team.
func (d *Decoder) Decode(ctx context.Context, kind model.Kind, body string) ([]model.Record, error) {
	genericPart, kindPart, ok := strings.Cut(body, d.generic.Meta(schema.MetaSectionSeparator))
	if !ok {
		return nil, fmt.Errorf("%w: missing section separator", ErrIncompleteRecord)
	}

	switch kind {
	case model.KindObjective:
		if d.objective == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		rec, err := d.decodeObjective(genericPart, kindPart)
		if err != nil {
			return nil, err
		}
		return []model.Record{rec}, nil
	case model.KindSubjective:
		if d.subjective == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		return d.decodeSubjective(ctx, genericPart, kindPart)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func (d *Decoder) decodeObjective(genericPart, kindPart string) (model.Record, error) {
	rec, err := d.DecodeGeneric(genericPart)
	if err != nil {
		return nil, err
	}
	fields, err := d.DecodeSection(schema.SectionObjective, d.split(d.objective, kindPart))
	if err != nil {
		return nil, err
	}
	rec = rec.With(fields)
	if err := complete(rec, d.objFields); err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *Decoder) decodeSubjective(ctx context.Context, genericPart, kindPart string) ([]model.Record, error) {
	generic, err := d.DecodeGeneric(genericPart)
	if err != nil {
		return nil, err
	}

	teamsPart := kindPart
	var alliance model.Record
	if sep := d.subjective.Meta(schema.MetaAllianceSeparator); sep != "" {
		var alliancePart string
		var ok bool
		teamsPart, alliancePart, ok = strings.Cut(kindPart, sep)
		if !ok {
			return nil, fmt.Errorf("%w: missing alliance segment", ErrIncompleteRecord)
		}
		if alliance, err = d.DecodeSection(schema.SectionSubjective, d.split(d.subjective, alliancePart)); err != nil {
			return nil, fmt.Errorf("alliance segment: %w", err)
		}
	}

	teams := strings.Split(teamsPart, d.subjective.Meta(schema.MetaTeamSeparator))
	if len(teams) != d.entityCount {
		return nil, fmt.Errorf("%w: got %d teams, want %d", ErrEntityCount, len(teams), d.entityCount)
	}

	out := make([]model.Record, 0, len(teams))
	for i, team := range teams {
		tokens := d.split(d.subjective, team)
		if bad, ok := d.invalidMarker(tokens); ok {
			d.log.Debug(ctx, "skipping subjective entity",
				logger.Int("entity", i),
				logger.String("marker", bad))
			metrics.RecordEntitySkipped()
			continue
		}
		fields, err := d.DecodeSection(schema.SectionSubjective, tokens)
		if err != nil {
			return nil, fmt.Errorf("team %d: %w", i, err)
		}
		rec := generic.With(fields).With(alliance)
		if err := complete(rec, d.subjFields); err != nil {
			return nil, fmt.Errorf("team %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// invalidMarker returns the first validity-marker token whose value is outside
// the allowed set.
func (d *Decoder) invalidMarker(tokens []string) (string, bool) {
	if len(d.markers) == 0 || len(d.markerValues) == 0 {
		return "", false
	}
	for _, tok := range tokens {
		if tok == "" || !slices.Contains(d.markers, tok[:1]) {
			continue
		}
		if !slices.Contains(d.markerValues, tok[1:]) {
			return tok, true
		}
	}
	return "", false
}

// DecodeGeneric decodes the generic segment. The schema version token is
// checked before any other field is coerced.
func (d *Decoder) DecodeGeneric(segment string) (model.Record, error) {
	tokens := d.split(d.generic, segment)

	if vf, ok := d.generic.ByName(schema.VersionField); ok {
		for _, tok := range tokens {
			if tok == "" || tok[:1] != vf.Code {
				continue
			}
			got, err := coerce.Int(tok[1:])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", schema.VersionField, err)
			}
			if got != d.schema.Version {
				return nil, &VersionMismatchError{Got: got, Want: d.schema.Version}
			}
		}
	}
	return d.DecodeSection(schema.SectionGeneric, tokens)
}

// DecodeSection maps each token to its field in section and coerces the
// value. A repeated code keeps the last value.
func (d *Decoder) DecodeSection(section string, tokens []string) (model.Record, error) {
	sec, ok := d.schema.Section(section)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownSection, section)
	}

	rec := make(model.Record, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%w: empty token in %s", ErrMalformedToken, section)
		}
		code, raw := tok[:1], tok[1:]
		f, ok := sec.ByCode(code)
		if !ok {
			return nil, fmt.Errorf("%w: code %q in %s", schema.ErrUnknownCode, code, section)
		}
		v, err := d.value(f, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func (d *Decoder) value(f schema.Field, raw string) (any, error) {
	switch {
	case f.IsNested():
		if f.Name != model.FieldTimeline {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedNestedType, f.Name)
		}
		return d.DecodeTimeline(raw)
	case f.IsList():
		return coerce.List(raw, f.Elem, d.schema.ListSeparator, f.Width, f.Name, d.schema)
	default:
		return coerce.Coerce(raw, f.Type, f.Name, d.schema)
	}
}

func (d *Decoder) split(sec *schema.Section, segment string) []string {
	if segment == "" {
		return nil
	}
	return strings.Split(segment, sec.Meta(schema.MetaSeparator))
}

// complete checks that rec holds exactly the fields in want.
func complete(rec model.Record, want map[string]struct{}) error {
	var missing []string
	for name := range want {
		if _, ok := rec[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 || len(rec) != len(want) {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %v", ErrIncompleteRecord, missing)
	}
	return nil
}
