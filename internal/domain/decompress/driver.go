// Package decompress runs the decoder over a batch of raw QR documents,
// applies per-entry overrides, and isolates failures so one bad payload never
// stops the rest of the batch.
package decompress

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/decode"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Failure is one raw entry that could not be decoded.
type Failure struct {
	ID      string
	Payload string
	Err     error
}

// Result holds a batch's decoded records bucketed by kind, in input order.
type Result struct {
	Objective  []model.Record
	Subjective []model.Record
	Failures   []Failure
	// Blocklisted counts entries ignored because they were blocklisted.
	Blocklisted int
}

// Driver decodes batches of raw QRs.
type Driver struct {
	dec     *decode.Decoder
	log     logger.Logger
	workers int
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers bounds how many entries decode concurrently.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the logger used for failures.
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDriver builds a Driver around dec.
func NewDriver(dec *decode.Decoder, opts ...Option) *Driver {
	d := &Driver{
		dec:     dec,
		log:     logger.Nop(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type outcome struct {
	kind    model.Kind
	records []model.Record
	err     error
	skipped bool
}

// ProcessBatch decodes every entry of qrs. Decoding failures are logged,
// counted and returned in Result.Failures; the only error returned is ctx's.
func (d *Driver) ProcessBatch(ctx context.Context, qrs []model.RawQR) (Result, error) {
	outcomes := make([]outcome, len(qrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range qrs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = d.processOne(gctx, qrs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for i, o := range outcomes {
		switch {
		case o.skipped:
			res.Blocklisted++
		case o.err != nil:
			d.log.Error(ctx, "failed to decompress qr",
				logger.String("qr_id", qrs[i].ID),
				logger.String("payload", qrs[i].Data),
				logger.Error(o.err))
			metrics.RecordDecodeFailure(Reason(o.err))
			res.Failures = append(res.Failures, Failure{ID: qrs[i].ID, Payload: qrs[i].Data, Err: o.err})
		case o.kind == model.KindObjective:
			res.Objective = append(res.Objective, o.records...)
		case o.kind == model.KindSubjective:
			res.Subjective = append(res.Subjective, o.records...)
		}
	}
	metrics.RecordDecoded(model.KindObjective.String(), len(res.Objective))
	metrics.RecordDecoded(model.KindSubjective.String(), len(res.Subjective))
	return res, nil
}

func (d *Driver) processOne(ctx context.Context, qr model.RawQR) outcome {
	if qr.Blocklisted {
		return outcome{skipped: true}
	}
	kind, recs, err := d.dec.DecodeQR(ctx, qr.Data)
	if err != nil {
		return outcome{kind: kind, err: err}
	}
	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		rec = rec.With(map[string]any{model.FieldEntryID: qr.ID})
		rec = ApplyOverrides(rec, qr.Override, d.dec.Schema())
		if kind == model.KindObjective {
			rec = attachOverride(rec, qr.Override)
		}
		out = append(out, rec)
	}
	return outcome{kind: kind, records: out}
}

// ApplyOverrides returns rec with override values for keys rec already holds.
// Timeline members and timeline-derived counts are left alone.
func ApplyOverrides(rec model.Record, override map[string]any, s *schema.Schema) model.Record {
	if len(override) == 0 {
		return rec
	}
	applied := make(map[string]any, len(override))
	for k, v := range override {
		if _, ok := rec[k]; !ok || s.OverrideExempt(k) {
			continue
		}
		applied[k] = v
	}
	if len(applied) == 0 {
		return rec
	}
	return rec.With(applied)
}

// attachOverride copies the whole override map onto an objective record.
// Timeline-derived counts are not on the record yet, so their corrections
// travel with it.
func attachOverride(rec model.Record, override map[string]any) model.Record {
	if override == nil {
		override = map[string]any{}
	}
	return rec.With(map[string]any{model.FieldOverride: override})
}

// DedupeSubjective keeps the first record per match, alliance and team so a
// second scout on the same alliance does not double count.
func DedupeSubjective(recs []model.Record) []model.Record {
	type key struct {
		match int
		red   bool
		team  string
	}
	seen := make(map[key]struct{}, len(recs))
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		match, _ := r.Int("match_number")
		red, _ := r.Bool("alliance_color_is_red")
		team, _ := r.String("team_number")
		k := key{match: match, red: red, team: team}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Reason names the failure class of err for metrics labels.
func Reason(err error) string {
	switch {
	case errors.Is(err, decode.ErrSchemaVersionMismatch):
		return "schema_version"
	case errors.Is(err, decode.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, decode.ErrIncompleteRecord):
		return "incomplete"
	case errors.Is(err, decode.ErrEntityCount):
		return "entity_count"
	case errors.Is(err, decode.ErrTimelineLength):
		return "timeline_length"
	case errors.Is(err, decode.ErrUnsupportedNestedType):
		return "nested_type"
	case errors.Is(err, coerce.ErrEnumLookup):
		return "enum_lookup"
	case errors.Is(err, coerce.ErrTypeCoercion), errors.Is(err, coerce.ErrUnsupportedType):
		return "type_coercion"
	case errors.Is(err, schema.ErrUnknownCode), errors.Is(err, decode.ErrMalformedToken):
		return "malformed"
	default:
		return "other"
	}
}
