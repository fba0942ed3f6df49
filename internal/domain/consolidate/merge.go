// Package consolidate reconciles several observers' documents about the same
// team into one canonical record.
//
// Merges are type-aware: booleans are ORed, numbers prefer a collected
// (nonzero) value over a placeholder zero, and strings or enums only replace
// the field's "not collected" sentinel. When two observers collected
// different values the configured Policy decides and a ConflictWarning is
// returned.
package consolidate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Policy resolves a disagreement between two collected values.
type Policy string

const (
	// KeepExisting keeps the value already stored.
	KeepExisting Policy = "keep_existing"
	// PreferIncoming takes the newest observation.
	PreferIncoming Policy = "prefer_incoming"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case KeepExisting, PreferIncoming:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// ConflictWarning records a field both observers collected differently.
type ConflictWarning struct {
	Key      string
	Field    string
	Existing any
	Incoming any
	Kept     any
}

func (w ConflictWarning) String() string {
	return fmt.Sprintf("%s: observers disagree on %s (%v vs %v), kept %v", w.Key, w.Field, w.Existing, w.Incoming, w.Kept)
}

// Merger merges documents of one collection.
type Merger struct {
	coll   *schema.Collection
	policy Policy
	log    logger.Logger
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithPolicy sets the conflict policy.
func WithPolicy(p Policy) MergerOption {
	return func(m *Merger) {
		if p != "" {
			m.policy = p
		}
	}
}

// WithLogger sets the logger conflicts are reported to.
func WithLogger(l logger.Logger) MergerOption {
	return func(m *Merger) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMerger creates a Merger for coll.
func NewMerger(coll *schema.Collection, opts ...MergerOption) *Merger {
	m := &Merger{
		coll:   coll,
		policy: KeepExisting,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Collection returns the collection the merger works on.
func (m *Merger) Collection() *schema.Collection { return m.coll }

// Merge folds incoming into existing. A nil existing yields incoming
// completed with defaults. Merge never mutates its inputs, and merging the
// same incoming twice gives the same result as merging it once.
func (m *Merger) Merge(existing, incoming model.Record) (model.Record, []ConflictWarning) {
	in := FillDefaults(Normalize(incoming, m.coll), m.coll.Fields, m.coll.Defaults)
	if existing == nil {
		return in, nil
	}
	ex := FillDefaults(Normalize(existing, m.coll), m.coll.Fields, m.coll.Defaults)
	key, _ := m.coll.KeyOf(in)

	out := ex.Clone()
	var conflicts []ConflictWarning
	for _, f := range m.coll.Fields {
		e, i := ex[f.Name], in[f.Name]
		if equal(e, i) {
			continue
		}
		v, conflict := m.field(f, e, i)
		out[f.Name] = v
		if conflict {
			conflicts = append(conflicts, ConflictWarning{Key: key, Field: f.Name, Existing: e, Incoming: i, Kept: v})
		}
	}
	for k, v := range in {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, conflicts
}

// MergeAndLog is Merge with conflicts reported through the logger and
// metrics.
func (m *Merger) MergeAndLog(ctx context.Context, existing, incoming model.Record) model.Record {
	out, conflicts := m.Merge(existing, incoming)
	for _, c := range conflicts {
		m.log.Warn(ctx, "pit scouts disagree",
			logger.String("collection", m.coll.Name),
			logger.String("key", c.Key),
			logger.String("field", c.Field),
			logger.Any("existing", c.Existing),
			logger.Any("incoming", c.Incoming),
			logger.Any("kept", c.Kept))
		metrics.RecordMergeConflict(c.Field)
	}
	metrics.RecordMerge()
	return out
}

func (m *Merger) field(f schema.PitField, e, i any) (any, bool) {
	switch f.Type {
	case schema.TypeBool:
		eb, _ := e.(bool)
		ib, _ := i.(bool)
		return eb || ib, false
	case schema.TypeInt, schema.TypeFloat:
		ef, _ := model.AsFloat(e)
		inf, _ := model.AsFloat(i)
		switch {
		case inf == 0:
			return e, false
		case ef == 0:
			return i, false
		}
	default:
		switch {
		case i == nil || i == f.Sentinel:
			return e, false
		case e == nil || e == f.Sentinel:
			return i, false
		}
	}
	if m.policy == PreferIncoming {
		return i, true
	}
	return e, true
}

// Normalize converts rec's declared fields to their schema types. Values that
// went through JSON come back as float64 or json.Number.
func Normalize(rec model.Record, coll *schema.Collection) model.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for _, f := range coll.Fields {
		v, ok := out[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Type {
		case schema.TypeInt:
			if n, ok := model.AsInt(v); ok {
				out[f.Name] = n
			}
		case schema.TypeFloat:
			if n, ok := model.AsFloat(v); ok {
				out[f.Name] = n
			}
		case schema.TypeStr:
			if _, isStr := v.(string); !isStr {
				out[f.Name] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// DecodePit turns a raw pit submission into a typed, complete record. Enum
// fields arrive as integers and are stored by name.
func DecodePit(raw map[string]any, coll *schema.Collection) (model.Record, error) {
	out := make(model.Record, len(coll.Fields))
	for name, v := range raw {
		f, ok := coll.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownPitField, coll.Name, name)
		}
		if v == nil {
			continue
		}
		tv, err := pitValue(coll, f, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", coll.Name, name, err)
		}
		out[name] = tv
	}
	for _, k := range coll.Key {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, k)
		}
	}
	return FillDefaults(out, coll.Fields, coll.Defaults), nil
}

func pitValue(coll *schema.Collection, f schema.PitField, v any) (any, error) {
	switch f.Type {
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeInt:
		if n, ok := model.AsInt(v); ok {
			return n, nil
		}
	case schema.TypeFloat:
		if n, ok := model.AsFloat(v); ok {
			return n, nil
		}
	case schema.TypeStr:
		switch s := v.(type) {
		case string:
			return s, nil
		default:
			if _, ok := model.AsFloat(v); ok {
				return fmt.Sprint(v), nil
			}
		}
	case schema.TypeEnum:
		if s, ok := v.(string); ok {
			if _, known := coll.EnumValue(f, s); known {
				return s, nil
			}
		}
		if n, ok := model.AsInt(v); ok {
			if name, known := coll.EnumName(f, n); known {
				return name, nil
			}
		}
		return nil, fmt.Errorf("%w: %v is not in enum %s", ErrPitValue, v, f.Enum)
	}
	return nil, fmt.Errorf("%w: %v (%T) is not %s", ErrPitValue, v, v, f.Type)
}

// FillDefaults returns rec with every declared field present. Missing fields
// take the placeholder of set; boolean fields holding a string become true
// when the string is non-empty. An empty per-match record stays empty since
// it marks a team that was not scouted.
func FillDefaults(rec model.Record, fields []schema.PitField, set schema.DefaultSet) model.Record {
	if set == schema.DefaultsTim && len(rec) == 0 {
		return rec
	}
	out := rec.Clone()
	if out == nil {
		out = make(model.Record, len(fields))
	}
	for _, f := range fields {
		v, ok := out[f.Name]
		switch {
		case !ok || v == nil:
			out[f.Name] = f.Default(set)
		case f.Type == schema.TypeBool:
			if s, isStr := v.(string); isStr {
				out[f.Name] = s != ""
			}
		}
	}
	return out
}

// MergeNotes combines several per-team superscout documents. Booleans are
// ORed, distinct non-empty strings are joined with " + ", and every other
// field keeps the first document's value.
func MergeNotes(docs []model.Record, coll *schema.Collection) (model.Record, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	filled := make([]model.Record, len(docs))
	for i, d := range docs {
		filled[i] = FillDefaults(Normalize(d, coll), coll.Fields, coll.Defaults)
	}
	if len(filled) == 1 {
		return filled[0], nil
	}

	out := filled[0].Clone()
	for _, f := range coll.Fields {
		switch f.Type {
		case schema.TypeBool:
			seen := false
			for _, d := range filled {
				b, _ := d[f.Name].(bool)
				seen = seen || b
			}
			out[f.Name] = seen
		case schema.TypeStr:
			if slices.Contains(coll.Key, f.Name) {
				continue
			}
			var parts []string
			for _, d := range filled {
				s, _ := d[f.Name].(string)
				if s != "" && s != f.Sentinel && !slices.Contains(parts, s) {
					parts = append(parts, s)
				}
			}
			out[f.Name] = strings.Join(parts, " + ")
		}
	}
	return out, nil
}

func equal(a, b any) bool {
	af, aok := model.AsFloat(a)
	bf, bok := model.AsFloat(b)
	if aok && bok {
		return af == bf
	}
	if _, isStr := a.(string); isStr {
		return a == b
	}
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return ab == bb
	}
	return a == nil && b == nil
}
