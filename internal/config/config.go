// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and SCOUT_* environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"runtime"
)

// Conflict policies understood by the pit consolidation engine.
const (
	PolicyKeepExisting   = "keep_existing"
	PolicyPreferIncoming = "prefer_incoming"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// SchemaPath points at the match collection QR schema. Empty uses the
	// embedded schema.
	SchemaPath string `koanf:"schema_path"`

	// PitSchemaPath points at the pit collection schema. Empty uses the
	// embedded schema.
	PitSchemaPath string `koanf:"pit_schema_path"`

	// IgnoreFile lists matches / scout ids whose audit warnings are suppressed.
	IgnoreFile string `koanf:"ignore_file"`

	// StoreDriver selects the document store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the sqlite database path when StoreDriver is sqlite.
	StoreDSN string `koanf:"store_dsn"`

	// PollIntervalMS is the delay between decompression passes. Zero disables
	// the poller; passes then run only on demand.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// DecodeWorkers bounds parallel per-record decoding inside a pass.
	DecodeWorkers int `koanf:"decode_workers"`

	// DedupeSize sets the size of the raw QR deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// QueueSize bounds the pit submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pit consolidation workers.
	WorkerCount int `koanf:"worker_count"`

	// LockStripes sets how many mutexes back the per-team merge locks.
	LockStripes int `koanf:"lock_stripes"`

	// ObserverMin and ObserverMax bound the scout ids expected in every match.
	ObserverMin int `koanf:"observer_min"`
	ObserverMax int `koanf:"observer_max"`

	// ConflictPolicy decides numeric/string disagreements between pit scouts.
	ConflictPolicy string `koanf:"conflict_policy"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		IgnoreFile:     "data/missing_tim_ignore.yml",
		StoreDriver:    StoreMemory,
		StoreDSN:       "scout.db",
		PollIntervalMS: 5_000,
		DecodeWorkers:  runtime.NumCPU(),
		DedupeSize:     50_000,
		QueueSize:      1_024,
		WorkerCount:    4,
		LockStripes:    64,
		ObserverMin:    1,
		ObserverMax:    18,
		ConflictPolicy: PolicyKeepExisting,
	}
}
