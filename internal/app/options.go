package service

import (
	"time"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
)

// IgnoreSource supplies the audit ignore list current at the time of a pass.
// *audit.IgnoreWatcher satisfies it.
type IgnoreSource interface {
	Current() *audit.IgnoreList
}

type staticIgnore struct{ list *audit.IgnoreList }

func (s staticIgnore) Current() *audit.IgnoreList { return s.list }

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the document store. The caller keeps ownership and closes
// it after Stop. Without it the service runs on a private MemStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSchema sets the match collection QR schema.
func WithSchema(sc *schema.Schema) Option {
	return func(s *Service) {
		if sc != nil {
			s.schema = sc
		}
	}
}

// WithPitSchema sets the pit and superscout collection schema.
func WithPitSchema(ps *schema.PitSchema) Option {
	return func(s *Service) {
		if ps != nil {
			s.pitSchema = ps
		}
	}
}

// WithIgnoreSource sets where audit passes read their ignore list from.
func WithIgnoreSource(src IgnoreSource) Option {
	return func(s *Service) {
		if src != nil {
			s.ignore = src
		}
	}
}

// WithIgnoreList fixes the audit ignore list.
func WithIgnoreList(l *audit.IgnoreList) Option {
	return WithIgnoreSource(staticIgnore{list: l})
}

// WithObserverRange sets the scout ids expected in every match.
func WithObserverRange(r audit.Range) Option {
	return func(s *Service) {
		if r.Min <= r.Max {
			s.observers = r
		}
	}
}

// WithConflictPolicy sets how disagreeing pit scouts are resolved.
func WithConflictPolicy(p consolidate.Policy) Option {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithWorkerCount sets the number of pit consolidation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the pit submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the raw QR deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDecodeWorkers bounds parallel decoding inside a pass.
func WithDecodeWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.decodeWorkers = n
		}
	}
}

// WithLockStripes sets how many mutexes back the per-team merge locks.
func WithLockStripes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lockStripes = n
		}
	}
}

// WithPollInterval runs a pass every d once started. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for readable_time stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
