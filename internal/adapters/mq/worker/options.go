// Package worker runs pit consolidation off the submission queue.
package worker

import (
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOnProcessed registers a callback invoked after every submission with
// the stored document, or the error that stopped it.
func WithOnProcessed(fn func(Submission, model.Record, error)) Option {
	return func(w *InMemoryWorker) {
		w.onProcessed = fn
	}
}
