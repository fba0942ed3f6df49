package repository

import "time"

const defaultMetricsUpdateInterval = 5 * time.Second

// Option configures a store.
type Option func(*options)

type options struct {
	metricsUpdateInterval time.Duration
	collections           []string
}

func defaultOptions() options {
	return options{
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		collections:           Collections(),
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.metricsUpdateInterval = interval
		}
	}
}

// WithCollections restricts the store to the named collections. Operations
// on any other collection fail with ErrUnknownCollection.
func WithCollections(names ...string) Option {
	return func(o *options) {
		if len(names) > 0 {
			o.collections = names
		}
	}
}
