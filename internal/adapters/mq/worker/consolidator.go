package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/model"
)

// Documents is the slice of the store the consolidator needs.
type Documents interface {
	Get(ctx context.Context, collection, key string) (model.Record, error)
	Put(ctx context.Context, collection, key string, doc model.Record) error
}

// Consolidator folds pit submissions into the canonical document of their
// team. Submissions for the same key are serialised through striped locks so
// concurrent workers never lose an update.
type Consolidator struct {
	docs    Documents
	mergers map[model.PitKind]*consolidate.Merger
	locks   *consolidate.KeyLocks
}

// NewConsolidator wires mergers, one per pit kind, to docs.
func NewConsolidator(docs Documents, mergers map[model.PitKind]*consolidate.Merger, locks *consolidate.KeyLocks) *Consolidator {
	if locks == nil {
		locks = consolidate.NewKeyLocks(0)
	}
	return &Consolidator{docs: docs, mergers: mergers, locks: locks}
}

// Merger returns the merger for kind.
func (c *Consolidator) Merger(kind model.PitKind) (*consolidate.Merger, error) {
	m, ok := c.mergers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return m, nil
}

// Consolidate decodes s, merges it with the stored document and writes the
// result back. It returns the stored document.
func (c *Consolidator) Consolidate(ctx context.Context, s Submission) (model.Record, error) {
	m, err := c.Merger(s.Kind)
	if err != nil {
		return nil, err
	}
	coll := m.Collection()

	rec, err := consolidate.DecodePit(s.Data, coll)
	if err != nil {
		return nil, err
	}
	key, ok := coll.KeyOf(rec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", consolidate.ErrMissingKey, coll.Name)
	}

	unlock := c.locks.Lock(coll.Name + "/" + key)
	defer unlock()

	existing, err := c.docs.Get(ctx, coll.Name, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("load %s/%s: %w", coll.Name, key, err)
	}

	merged := m.MergeAndLog(ctx, existing, rec)
	if err := c.docs.Put(ctx, coll.Name, key, merged); err != nil {
		return nil, fmt.Errorf("store %s/%s: %w", coll.Name, key, err)
	}
	return merged, nil
}
