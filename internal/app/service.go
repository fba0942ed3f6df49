// Package service wires the decoding pipeline, pit consolidation and the
// document store together behind the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	pitqueue "github.com/okian/scout/internal/adapters/mq/queue"
	pitworker "github.com/okian/scout/internal/adapters/mq/worker"
	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/decode"
	"github.com/okian/scout/internal/domain/decompress"
	"github.com/okian/scout/internal/domain/dedupe"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// pipeline holds the components built by Start. It is never modified after
// construction, so operations may use it without holding Service.mu.
type pipeline struct {
	store        repository.Store
	schema       *schema.Schema
	pitSchema    *schema.PitSchema
	decoder      *decode.Decoder
	driver       *decompress.Driver
	deduper      dedupe.Deduper
	queue        *pitqueue.InMemoryQueue
	consolidator *pitworker.Consolidator
	pool         *pitworker.Pool
	ownsStore    bool
}

// Service implements the API dependencies for the scouting pipeline.
type Service struct {
	mu sync.RWMutex
	p  *pipeline

	// Configuration
	store         repository.Store
	schema        *schema.Schema
	pitSchema     *schema.PitSchema
	ignore        IgnoreSource
	workerCount   int
	queueSize     int
	dedupeSize    int
	decodeWorkers int
	lockStripes   int
	pollInterval  time.Duration
	observers     audit.Range
	policy        consolidate.Policy
	now           func() time.Time

	// Pass state; passMu serialises passes and guards cursor and lastPass.
	passMu   sync.Mutex
	cursor   int64
	lastPass *PassResult

	// State
	stopCh chan struct{}
	wg     sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     1_024,
		dedupeSize:    50_000,
		decodeWorkers: runtime.NumCPU(),
		lockStripes:   64,
		observers:     audit.DefaultRange,
		policy:        consolidate.KeepExisting,
		now:           time.Now,
		ignore:        staticIgnore{},
		logger:        logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline, restores the pass cursor and dedupe cache from
// the store, then starts the pit workers and, if configured, the poller.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.p != nil {
		return nil
	}
	s.logger.Info(ctx, "starting scouting service...")

	p, err := s.build(ctx)
	if err != nil {
		return err
	}
	if err := s.restore(ctx, p); err != nil {
		if p.ownsStore {
			_ = p.store.Close()
		}
		return err
	}
	p.pool.Start(ctx)
	s.p = p

	s.stopCh = make(chan struct{})
	if s.pollInterval > 0 {
		s.wg.Add(1)
		go s.poll(ctx, s.stopCh)
	}

	s.logger.Info(ctx, "scouting service started",
		logger.Int("schema_version", p.schema.Version),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("pollInterval", s.pollInterval),
	)
	return nil
}

func (s *Service) build(ctx context.Context) (*pipeline, error) {
	p := &pipeline{store: s.store, schema: s.schema, pitSchema: s.pitSchema}
	if p.schema == nil {
		p.schema = schema.Default()
	}
	if p.pitSchema == nil {
		p.pitSchema = schema.DefaultPit()
	}

	mergers := make(map[model.PitKind]*consolidate.Merger, 2)
	for _, kind := range []model.PitKind{model.PitObjective, model.PitSubjective} {
		coll, err := p.pitSchema.Collection(string(kind))
		if err != nil {
			return nil, fmt.Errorf("pit schema: %w", err)
		}
		mergers[kind] = consolidate.NewMerger(coll,
			consolidate.WithPolicy(s.policy),
			consolidate.WithLogger(s.logger.Named("consolidate")))
	}

	if p.store == nil {
		p.store = repository.NewMemStore(ctx)
		p.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}

	p.decoder = decode.New(p.schema, decode.WithLogger(s.logger.Named("decode")))
	p.driver = decompress.NewDriver(p.decoder,
		decompress.WithWorkers(s.decodeWorkers),
		decompress.WithLogger(s.logger.Named("decompress")))
	p.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	p.consolidator = pitworker.NewConsolidator(p.store, mergers, consolidate.NewKeyLocks(s.lockStripes))
	p.queue = pitqueue.NewInMemoryQueue(pitqueue.WithCapacity(s.queueSize))
	p.pool = pitworker.NewPool(s.workerCount, p.queue, p.consolidator,
		pitworker.WithLogger(s.logger.Named("worker")))
	return p, nil
}

// restore reloads state that must survive a restart.
func (s *Service) restore(ctx context.Context, p *pipeline) error {
	raws, err := p.store.Find(ctx, repository.CollectionRawQR, nil)
	if err != nil {
		return fmt.Errorf("load raw qrs: %w", err)
	}
	payloads := make([]string, 0, len(raws))
	for _, r := range raws {
		if data, ok := r.String("data"); ok {
			payloads = append(payloads, data)
		}
	}
	p.deduper.Seed(ctx, payloads)

	cursor, err := loadCursor(ctx, p.store)
	if err != nil {
		return err
	}
	s.passMu.Lock()
	s.cursor = cursor
	s.passMu.Unlock()
	return nil
}

// Stop gracefully shuts down the service. Queued pit submissions are drained
// and any running pass finishes before it returns.
func (s *Service) Stop() {
	s.mu.Lock()
	p := s.p
	if p == nil {
		s.mu.Unlock()
		return
	}
	s.p = nil
	close(s.stopCh)
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scouting service...")

	s.wg.Wait()
	// Wait out a pass started before s.p was cleared.
	s.passMu.Lock()
	s.passMu.Unlock() //nolint:staticcheck // empty critical section is the point

	if err := p.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if p.ownsStore {
		_ = p.store.Close()
	}
	s.logger.Info(ctx, "scouting service stopped")
}

// pipeline returns the running pipeline or ErrNotStarted.
func (s *Service) pipeline() (*pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.p == nil {
		return nil, ErrNotStarted
	}
	return s.p, nil
}

// Started reports whether the service is running.
func (s *Service) Started() bool {
	_, err := s.pipeline()
	return err == nil
}

// Schema returns the match collection schema in use.
func (s *Service) Schema() (*schema.Schema, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return p.schema, nil
}

// Stats is a point-in-time view for monitoring.
type Stats struct {
	Started     bool           `json:"started"`
	WorkerCount int            `json:"workerCount"`
	QueueSize   int            `json:"queueSize"`
	QueueLength int            `json:"queueLength"`
	DedupeSize  int64          `json:"dedupeSize"`
	Documents   map[string]int `json:"documents,omitempty"`
	Cursor      int64          `json:"cursor"`
	LastPass    *PassResult    `json:"lastPass,omitempty"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	st := Stats{WorkerCount: s.workerCount, QueueSize: s.queueSize}

	p, err := s.pipeline()
	if err != nil {
		return st
	}
	st.Started = true
	st.QueueLength = p.queue.Len(ctx)
	st.DedupeSize = p.deduper.Size()
	st.Documents = make(map[string]int)
	for _, name := range repository.Collections() {
		n, err := p.store.Count(ctx, name)
		if err != nil {
			continue
		}
		st.Documents[name] = n
		metrics.UpdateStoreDocuments(name, n)
	}

	s.passMu.Lock()
	st.Cursor = s.cursor
	if s.lastPass != nil {
		last := *s.lastPass
		st.LastPass = &last
	}
	s.passMu.Unlock()
	return st
}
