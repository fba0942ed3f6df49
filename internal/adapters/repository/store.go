// Package repository stores scouting documents in named collections.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/scout/internal/domain/model"
)

// Collections written by the pipeline.
const (
	CollectionRawQR          = "raw_qr"
	CollectionObjectiveTIM   = "unconsolidated_obj_tim"
	CollectionSubjectiveTIM  = "subj_tim"
	CollectionObjectivePit   = "obj_pit"
	CollectionSubjectivePit  = "subj_pit"
	CollectionSuperscoutTeam = "ss_team"
	CollectionSuperscoutTIM  = "ss_tim"

	// CollectionPasses holds pipeline bookkeeping such as the pass cursor.
	CollectionPasses = "passes"
)

// Collections lists every collection in a stable order.
func Collections() []string {
	return []string{
		CollectionRawQR,
		CollectionObjectiveTIM,
		CollectionSubjectiveTIM,
		CollectionObjectivePit,
		CollectionSubjectivePit,
		CollectionSuperscoutTeam,
		CollectionSuperscoutTIM,
		CollectionPasses,
	}
}

// Filter selects documents whose fields equal every listed value. Numbers
// compare by value regardless of their Go type.
type Filter map[string]any

// Write is one part of an atomic Apply. With a Key, the single document in
// Docs is stored as Put would; without one, Docs are inserted as by Insert.
type Write struct {
	Collection string
	Key        string
	Docs       []model.Record
}

func (w Write) validate() error {
	if w.Key != "" && len(w.Docs) != 1 {
		return fmt.Errorf("%w: keyed write to %s needs one document, got %d", ErrInvalidWrite, w.Collection, len(w.Docs))
	}
	return nil
}

// Store persists documents. Every document carries a sequence number that
// grows with insertion order and never changes, so readers can page through
// a collection with Since.
//
// Returned documents are copies; callers may modify them freely.
type Store interface {
	// Insert appends documents without a key.
	Insert(ctx context.Context, collection string, docs ...model.Record) error

	// Put stores doc under key, replacing any previous document with that key.
	// A replaced document keeps its sequence number.
	Put(ctx context.Context, collection, key string, doc model.Record) error

	// Apply performs every write or none of them.
	Apply(ctx context.Context, writes ...Write) error

	// Get returns the document stored under key.
	// Returns ErrNotFound if there is none.
	Get(ctx context.Context, collection, key string) (model.Record, error)

	// Find returns the documents matching filter in sequence order.
	// A nil filter matches everything.
	Find(ctx context.Context, collection string, filter Filter) ([]model.Record, error)

	// Since returns the documents with a sequence number above after, in order,
	// plus the cursor to pass next time.
	Since(ctx context.Context, collection string, after int64) ([]model.Record, int64, error)

	// Count returns the number of documents in collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources held by the store.
	Close() error
}
