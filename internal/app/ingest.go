package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// readableTimeLayout matches what scanning stations display next to a code.
const readableTimeLayout = "2006-01-02 15:04:05"

// SubmitResult reports what happened to each payload of a submission.
type SubmitResult struct {
	// Accepted holds the ids assigned to newly stored payloads, in order.
	Accepted []string `json:"accepted"`
	// Duplicates counts payloads already stored or repeated in the batch.
	Duplicates int `json:"duplicates"`
	// Invalid holds payloads whose start character matches no QR layout.
	Invalid []string `json:"invalid,omitempty"`
}

// SubmitQRs stores scanned payloads in raw_qr. Payloads are trimmed; empty
// ones are ignored, ones with an unknown start character are rejected and
// duplicates are skipped. A store failure aborts the rest of the batch.
func (s *Service) SubmitQRs(ctx context.Context, payloads []string) (SubmitResult, error) {
	res := SubmitResult{Accepted: make([]string, 0, len(payloads))}
	p, err := s.pipeline()
	if err != nil {
		return res, err
	}

	for _, raw := range payloads {
		data := strings.TrimSpace(raw)
		if data == "" {
			continue
		}
		if _, err := p.decoder.KindOf(data); err != nil {
			metrics.RecordQRInvalid()
			s.logger.Warn(ctx, "rejecting qr with unknown start character",
				logger.String("payload", data), logger.Error(err))
			res.Invalid = append(res.Invalid, data)
			continue
		}
		dup := p.deduper.SeenAndRecord(ctx, data)
		if !dup && p.deduper.Evicted() > 0 {
			if dup, err = p.storedPayload(ctx, data); err != nil {
				p.deduper.Forget(ctx, data)
				return res, err
			}
		}
		if dup {
			metrics.RecordQRDuplicate()
			s.logger.Debug(ctx, "duplicate qr skipped", logger.String("payload", data))
			res.Duplicates++
			continue
		}

		qr := model.RawQR{
			ID:           uuid.NewString(),
			Data:         data,
			Override:     map[string]any{},
			ReadableTime: s.now().Format(readableTimeLayout),
		}
		if err := p.store.Put(ctx, repository.CollectionRawQR, qr.ID, rawToRecord(qr)); err != nil {
			p.deduper.Forget(ctx, data)
			return res, fmt.Errorf("store qr: %w", err)
		}
		metrics.RecordQRReceived()
		res.Accepted = append(res.Accepted, qr.ID)
	}

	s.logger.Info(ctx, "qrs submitted",
		logger.Int("accepted", len(res.Accepted)),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("invalid", len(res.Invalid)))
	return res, nil
}

// storedPayload reports whether raw_qr already holds data. It backs the
// bounded deduper once older fingerprints have been evicted.
func (p *pipeline) storedPayload(ctx context.Context, data string) (bool, error) {
	found, err := p.store.Find(ctx, repository.CollectionRawQR, repository.Filter{"data": data})
	if err != nil {
		return false, fmt.Errorf("look up qr: %w", err)
	}
	return len(found) > 0, nil
}

// RawQR returns the stored raw QR with id.
func (s *Service) RawQR(ctx context.Context, id string) (model.RawQR, error) {
	p, err := s.pipeline()
	if err != nil {
		return model.RawQR{}, err
	}
	rec, err := p.store.Get(ctx, repository.CollectionRawQR, id)
	if err != nil {
		return model.RawQR{}, err
	}
	return rawFromRecord(rec)
}

// Blocklist excludes a raw QR from every later pass.
func (s *Service) Blocklist(ctx context.Context, id string) error {
	return s.updateRaw(ctx, id, func(qr *model.RawQR) error {
		qr.Blocklisted = true
		return nil
	})
}

// SetOverride merges fields into a raw QR's override map. Later passes
// replace matching decoded values with them. Corrections to timeline-derived
// counts are kept and travel on the objective record; the timeline itself
// cannot be overridden.
func (s *Service) SetOverride(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidOverride)
	}
	sc, err := s.Schema()
	if err != nil {
		return err
	}
	for name := range fields {
		if sc.OverrideExempt(name) && !sc.IsTimelineCount(name) {
			return fmt.Errorf("%w: %s cannot be overridden", ErrInvalidOverride, name)
		}
	}
	return s.updateRaw(ctx, id, func(qr *model.RawQR) error {
		if qr.Override == nil {
			qr.Override = make(map[string]any, len(fields))
		}
		maps.Copy(qr.Override, fields)
		return nil
	})
}

func (s *Service) updateRaw(ctx context.Context, id string, fn func(*model.RawQR) error) error {
	p, err := s.pipeline()
	if err != nil {
		return err
	}
	rec, err := p.store.Get(ctx, repository.CollectionRawQR, id)
	if err != nil {
		return err
	}
	qr, err := rawFromRecord(rec)
	if err != nil {
		return err
	}
	if err := fn(&qr); err != nil {
		return err
	}
	return p.store.Put(ctx, repository.CollectionRawQR, id, rawToRecord(qr))
}

func rawToRecord(qr model.RawQR) model.Record {
	override := qr.Override
	if override == nil {
		override = map[string]any{}
	}
	return model.Record{
		model.FieldEntryID: qr.ID,
		"data":             qr.Data,
		"blocklisted":      qr.Blocklisted,
		"override":         override,
		"readable_time":    qr.ReadableTime,
	}
}

func rawFromRecord(rec model.Record) (model.RawQR, error) {
	id, ok := rec.String(model.FieldEntryID)
	if !ok {
		return model.RawQR{}, fmt.Errorf("%w: missing %s", ErrCorruptRawQR, model.FieldEntryID)
	}
	data, ok := rec.String("data")
	if !ok {
		return model.RawQR{}, fmt.Errorf("%w: %s has no data", ErrCorruptRawQR, id)
	}
	qr := model.RawQR{ID: id, Data: data}
	qr.Blocklisted, _ = rec.Bool("blocklisted")
	qr.ReadableTime, _ = rec.String("readable_time")
	switch o := rec["override"].(type) {
	case map[string]any:
		qr.Override = o
	case model.Record:
		qr.Override = o
	case nil:
	default:
		return model.RawQR{}, fmt.Errorf("%w: %s override is %T", ErrCorruptRawQR, id, o)
	}
	return qr, nil
}

func isNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }
