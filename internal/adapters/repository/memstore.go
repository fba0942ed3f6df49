package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/metrics"
)

// memDoc is one stored document with its position in insertion order.
type memDoc struct {
	seq int64
	key string
	rec model.Record
}

// memCollection keeps documents ordered by seq; byKey indexes keyed ones.
type memCollection struct {
	docs  []memDoc
	byKey map[string]int
}

// MemStore is an in-memory Store. It is safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	colls  map[string]*memCollection
	seq    int64
	closed bool

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an in-memory store and starts its metrics updater.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &MemStore{
		colls:                 make(map[string]*memCollection, len(o.collections)),
		metricsUpdateInterval: o.metricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for name := range collectionSet(o.collections) {
		s.colls[name] = &memCollection{byKey: make(map[string]int)}
	}

	startMetricsUpdater(ctx, &s.wg, s.stopChan, s.metricsUpdateInterval, s.updateMetrics)
	return s
}

// Close stops the metrics updater. Later operations fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// collection returns the named collection; callers hold s.mu.
func (s *MemStore) collection(name string) (*memCollection, error) {
	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.colls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Insert implements Store.Insert.
func (s *MemStore) Insert(_ context.Context, collection string, docs ...model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		metrics.RecordStoreError("insert")
		return err
	}
	s.insert(c, docs)
	return nil
}

// Put implements Store.Put.
func (s *MemStore) Put(_ context.Context, collection, key string, doc model.Record) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		metrics.RecordStoreError("put")
		return err
	}
	s.put(c, key, doc)
	return nil
}

// Apply implements Store.Apply. Every write is checked before any is made.
func (s *MemStore) Apply(_ context.Context, writes ...Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	colls := make([]*memCollection, len(writes))
	for i, w := range writes {
		if err := w.validate(); err != nil {
			return err
		}
		c, err := s.collection(w.Collection)
		if err != nil {
			metrics.RecordStoreError("apply")
			return err
		}
		colls[i] = c
	}
	for i, w := range writes {
		if w.Key != "" {
			s.put(colls[i], w.Key, w.Docs[0])
			continue
		}
		s.insert(colls[i], w.Docs)
	}
	return nil
}

// insert appends docs to c; callers hold s.mu.
func (s *MemStore) insert(c *memCollection, docs []model.Record) {
	for _, d := range docs {
		s.seq++
		c.docs = append(c.docs, memDoc{seq: s.seq, rec: copyRecord(d)})
	}
}

// put stores doc under key in c; callers hold s.mu.
func (s *MemStore) put(c *memCollection, key string, doc model.Record) {
	if i, ok := c.byKey[key]; ok {
		c.docs[i].rec = copyRecord(doc)
		return
	}
	s.seq++
	c.byKey[key] = len(c.docs)
	c.docs = append(c.docs, memDoc{seq: s.seq, key: key, rec: copyRecord(doc)})
}

// Get implements Store.Get.
func (s *MemStore) Get(_ context.Context, collection, key string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		metrics.RecordStoreError("get")
		return nil, err
	}
	i, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	return copyRecord(c.docs[i].rec), nil
}

// Find implements Store.Find.
func (s *MemStore) Find(_ context.Context, collection string, filter Filter) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		metrics.RecordStoreError("find")
		return nil, err
	}
	out := make([]model.Record, 0, len(c.docs))
	for _, d := range c.docs {
		if filter.Match(d.rec) {
			out = append(out, copyRecord(d.rec))
		}
	}
	return out, nil
}

// Since implements Store.Since.
func (s *MemStore) Since(_ context.Context, collection string, after int64) ([]model.Record, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		metrics.RecordStoreError("since")
		return nil, after, err
	}
	start := sort.Search(len(c.docs), func(i int) bool { return c.docs[i].seq > after })
	out := make([]model.Record, 0, len(c.docs)-start)
	cursor := after
	for _, d := range c.docs[start:] {
		out = append(out, copyRecord(d.rec))
		cursor = d.seq
	}
	return out, cursor, nil
}

// Count implements Store.Count.
func (s *MemStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return len(c.docs), nil
}

// updateMetrics publishes per-collection document counts.
func (s *MemStore) updateMetrics() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, c := range s.colls {
		metrics.UpdateStoreDocuments(name, len(c.docs))
	}
}

// startMetricsUpdater runs update every interval until ctx ends or stop closes.
func startMetricsUpdater(ctx context.Context, wg *sync.WaitGroup, stop <-chan struct{}, interval time.Duration, update func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				update()
			}
		}
	}()
}
