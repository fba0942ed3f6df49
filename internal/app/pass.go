package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/decompress"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

const passCursorKey = "cursor"

// PassFailure is a raw QR that could not be decoded.
type PassFailure struct {
	ID     string `json:"qr_id"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// PassResult summarises one decompression pass.
type PassResult struct {
	Processed   int             `json:"processed"`
	Blocklisted int             `json:"blocklisted"`
	Objective   int             `json:"objective"`
	Subjective  int             `json:"subjective"`
	Failures    []PassFailure   `json:"failures,omitempty"`
	Warnings    []audit.Warning `json:"warnings,omitempty"`
	Cursor      int64           `json:"cursor"`
	StartedAt   time.Time       `json:"startedAt"`
	DurationMS  float64         `json:"durationMs"`
}

// RunPass decodes every raw QR stored since the previous pass, writes the
// resulting team-in-match records and audits scout coverage. Passes never
// overlap; the cursor only advances once the records are stored.
func (s *Service) RunPass(ctx context.Context) (PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	p, err := s.pipeline()
	if err != nil {
		return PassResult{}, err
	}
	start := time.Now()
	res := PassResult{StartedAt: start.UTC(), Cursor: s.cursor}

	raws, cursor, err := p.store.Since(ctx, repository.CollectionRawQR, s.cursor)
	if err != nil {
		return res, fmt.Errorf("read raw qrs: %w", err)
	}
	qrs := make([]model.RawQR, 0, len(raws))
	for _, r := range raws {
		qr, err := rawFromRecord(r)
		if err != nil {
			s.logger.Error(ctx, "skipping corrupt raw qr", logger.Error(err))
			continue
		}
		qrs = append(qrs, qr)
	}

	batch, err := p.driver.ProcessBatch(ctx, qrs)
	if err != nil {
		return res, err
	}
	subjective := decompress.DedupeSubjective(batch.Subjective)

	// Records and the cursor land together so a failed pass can be rerun
	// without storing anything twice.
	if err := p.store.Apply(ctx,
		repository.Write{Collection: repository.CollectionObjectiveTIM, Docs: batch.Objective},
		repository.Write{Collection: repository.CollectionSubjectiveTIM, Docs: subjective},
		cursorWrite(cursor),
	); err != nil {
		return res, fmt.Errorf("store pass records: %w", err)
	}
	s.cursor = cursor

	warnings, err := s.audit(ctx, p)
	if err != nil {
		return res, err
	}

	res.Processed = len(qrs)
	res.Blocklisted = batch.Blocklisted
	res.Objective = len(batch.Objective)
	res.Subjective = len(subjective)
	res.Warnings = warnings
	res.Cursor = cursor
	for _, f := range batch.Failures {
		res.Failures = append(res.Failures, PassFailure{ID: f.ID, Reason: decompress.Reason(f.Err), Error: f.Err.Error()})
	}
	elapsed := time.Since(start)
	res.DurationMS = float64(elapsed.Microseconds()) / 1000
	metrics.RecordPass(res.DurationMS, len(qrs))

	last := res
	s.lastPass = &last

	s.logger.Info(ctx, "decompression pass complete",
		logger.Int("processed", res.Processed),
		logger.Int("objective", res.Objective),
		logger.Int("subjective", res.Subjective),
		logger.Int("failures", len(res.Failures)),
		logger.Int("blocklisted", res.Blocklisted),
		logger.Int("warnings", len(res.Warnings)),
		logger.Duration("elapsed", elapsed))
	return res, nil
}

// Audit checks scout coverage over every stored objective record.
func (s *Service) Audit(ctx context.Context) ([]audit.Warning, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return s.audit(ctx, p)
}

func (s *Service) audit(ctx context.Context, p *pipeline) ([]audit.Warning, error) {
	recs, err := p.store.Find(ctx, repository.CollectionObjectiveTIM, nil)
	if err != nil {
		return nil, fmt.Errorf("read objective records: %w", err)
	}
	warnings := audit.Audit(audit.ObservationsFrom(recs), s.observers, s.ignore.Current())
	for _, w := range warnings {
		s.logger.Warn(ctx, w.String(),
			logger.String("kind", string(w.Kind)),
			logger.Int("match_number", w.MatchNumber),
			logger.Int("scout_id", w.ScoutID))
		metrics.RecordAuditWarning(string(w.Kind))
	}
	return warnings, nil
}

// TIMs returns stored team-in-match records of kind, optionally narrowed by
// match number (zero means every match) and team number (empty means every
// team).
func (s *Service) TIMs(ctx context.Context, kind model.Kind, match int, team string) ([]model.Record, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	var collection string
	switch kind {
	case model.KindObjective:
		collection = repository.CollectionObjectiveTIM
	case model.KindSubjective:
		collection = repository.CollectionSubjectiveTIM
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTIMKind, kind)
	}

	filter := repository.Filter{}
	if match > 0 {
		filter["match_number"] = match
	}
	if team != "" {
		filter["team_number"] = team
	}
	return p.store.Find(ctx, collection, filter)
}

// poll runs a pass every interval until stop closes or ctx ends.
func (s *Service) poll(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.RunPass(ctx); err != nil {
				s.logger.Error(ctx, "scheduled pass failed", logger.Error(err))
			}
		}
	}
}

func loadCursor(ctx context.Context, store repository.Store) (int64, error) {
	state, err := store.Get(ctx, repository.CollectionPasses, passCursorKey)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load pass cursor: %w", err)
	}
	c, _ := state.Int("cursor")
	return int64(c), nil
}

func cursorWrite(cursor int64) repository.Write {
	return repository.Write{
		Collection: repository.CollectionPasses,
		Key:        passCursorKey,
		Docs:       []model.Record{{"cursor": cursor}},
	}
}
