package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	pitqueue "github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

// SubmitPit queues a raw pit observation for consolidation and returns the
// submission id. It fails fast with ErrBackpressure when the queue is full.
func (s *Service) SubmitPit(ctx context.Context, kind model.PitKind, data map[string]any) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPitKind, kind)
	}
	p, err := s.pipeline()
	if err != nil {
		return "", err
	}

	sub := pitqueue.Submission{ID: uuid.NewString(), Kind: kind, Data: data}
	if err := p.queue.Enqueue(ctx, sub); err != nil {
		if errors.Is(err, pitqueue.ErrFull) {
			return "", fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return "", err
	}
	s.logger.Debug(ctx, "pit submission queued",
		logger.String("id", sub.ID), logger.String("kind", string(kind)))
	return sub.ID, nil
}

// ConsolidatePit merges a raw pit observation immediately, bypassing the
// queue, and returns the stored document.
func (s *Service) ConsolidatePit(ctx context.Context, kind model.PitKind, data map[string]any) (model.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPitKind, kind)
	}
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return p.consolidator.Consolidate(ctx, pitqueue.Submission{ID: uuid.NewString(), Kind: kind, Data: data})
}

// GetPit returns the consolidated pit document for team.
func (s *Service) GetPit(ctx context.Context, kind model.PitKind, team string) (model.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPitKind, kind)
	}
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	coll, err := p.pitSchema.Collection(string(kind))
	if err != nil {
		return nil, err
	}
	key, ok := coll.KeyOf(map[string]any{"team_number": team})
	if !ok {
		return nil, fmt.Errorf("%w: %s", consolidate.ErrMissingKey, coll.Name)
	}
	return p.store.Get(ctx, coll.Name, key)
}

// SubmitSuperscout stores one superscout record in ss_team or ss_tim after
// completing it with the collection's defaults.
func (s *Service) SubmitSuperscout(ctx context.Context, collection string, data map[string]any) (model.Record, error) {
	if collection != repository.CollectionSuperscoutTeam && collection != repository.CollectionSuperscoutTIM {
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownCollection, collection)
	}
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	coll, err := p.pitSchema.Collection(collection)
	if err != nil {
		return nil, err
	}
	rec, err := consolidate.DecodePit(data, coll)
	if err != nil {
		return nil, err
	}
	if err := p.store.Insert(ctx, collection, rec); err != nil {
		return nil, fmt.Errorf("store %s: %w", collection, err)
	}
	return rec, nil
}

// SuperscoutTeam consolidates every superscout note about team into one
// record: flags are ORed and distinct notes joined.
func (s *Service) SuperscoutTeam(ctx context.Context, team string) (model.Record, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	coll, err := p.pitSchema.Collection(repository.CollectionSuperscoutTeam)
	if err != nil {
		return nil, err
	}
	docs, err := p.store.Find(ctx, coll.Name, repository.Filter{"team_number": team})
	if err != nil {
		return nil, err
	}
	merged, err := consolidate.MergeNotes(docs, coll)
	if errors.Is(err, consolidate.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, coll.Name, team)
	}
	return merged, err
}
