package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/metrics"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	doc_key    TEXT,
	body       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_key ON documents(collection, doc_key);
CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(collection, seq);
`

const (
	insertSQL = `INSERT INTO documents (collection, doc_key, body, updated_at) VALUES (?, NULL, ?, ?)`
	upsertSQL = `
		INSERT INTO documents (collection, doc_key, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, doc_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
)

// SQLiteStore is a Store backed by a single sqlite table holding JSON bodies.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	known map[string]struct{}

	wg       sync.WaitGroup
	stopChan chan struct{}
	once     sync.Once
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		path:     path,
		known:    collectionSet(o.collections),
		stopChan: make(chan struct{}),
	}
	startMetricsUpdater(ctx, &s.wg, s.stopChan, o.metricsUpdateInterval, s.updateMetrics)
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close stops the metrics updater and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) check(collection string) error {
	if _, ok := s.known[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return nil
}

func encode(doc model.Record) (string, error) {
	if doc == nil {
		doc = model.Record{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return string(b), nil
}

func decode(body string) (model.Record, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var rec model.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if rec == nil {
		rec = model.Record{}
	}
	for k, v := range rec {
		rec[k] = fromJSON(v)
	}
	return rec, nil
}

// Insert implements Store.Insert. All documents land in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, docs ...model.Record) error {
	if err := s.check(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordStoreError("insert")
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		metrics.RecordStoreError("insert")
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		body, err := encode(d)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, body, now); err != nil {
			metrics.RecordStoreError("insert")
			return fmt.Errorf("insert into %s: %w", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordStoreError("insert")
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Put implements Store.Put.
func (s *SQLiteStore) Put(ctx context.Context, collection, key string, doc model.Record) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.check(collection); err != nil {
		return err
	}
	body, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, collection, key, body, time.Now().UTC())
	if err != nil {
		metrics.RecordStoreError("put")
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Apply implements Store.Apply. The writes share one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, writes ...Write) error {
	for _, w := range writes {
		if err := w.validate(); err != nil {
			return err
		}
		if err := s.check(w.Collection); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordStoreError("apply")
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, w := range writes {
		for _, d := range w.Docs {
			body, err := encode(d)
			if err != nil {
				return err
			}
			if w.Key == "" {
				_, err = tx.ExecContext(ctx, insertSQL, w.Collection, body, now)
			} else {
				_, err = tx.ExecContext(ctx, upsertSQL, w.Collection, w.Key, body, now)
			}
			if err != nil {
				metrics.RecordStoreError("apply")
				return fmt.Errorf("write %s: %w", w.Collection, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordStoreError("apply")
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (model.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	if err != nil {
		metrics.RecordStoreError("get")
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return decode(body)
}

// Find implements Store.Find. Filtering happens after decoding so numeric
// comparison matches MemStore.
func (s *SQLiteStore) Find(ctx context.Context, collection string, filter Filter) ([]model.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	recs, _, err := s.scan(ctx, "find",
		`SELECT seq, body FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Since implements Store.Since.
func (s *SQLiteStore) Since(ctx context.Context, collection string, after int64) ([]model.Record, int64, error) {
	if err := s.check(collection); err != nil {
		return nil, after, err
	}
	recs, last, err := s.scan(ctx, "since",
		`SELECT seq, body FROM documents WHERE collection = ? AND seq > ? ORDER BY seq`, collection, after)
	if err != nil {
		return nil, after, err
	}
	if len(recs) == 0 {
		return recs, after, nil
	}
	return recs, last, nil
}

func (s *SQLiteStore) scan(ctx context.Context, op, query string, args ...any) ([]model.Record, int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreError(op)
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var (
		out  = make([]model.Record, 0)
		last int64
	)
	for rows.Next() {
		var body string
		if err := rows.Scan(&last, &body); err != nil {
			metrics.RecordStoreError(op)
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		rec, err := decode(body)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError(op)
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return out, last, nil
}

// Count implements Store.Count.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n); err != nil {
		metrics.RecordStoreError("count")
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *SQLiteStore) updateMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, name := range sortedCollections(s.known) {
		n, err := s.Count(ctx, name)
		if err != nil {
			continue
		}
		metrics.UpdateStoreDocuments(name, n)
	}
}
