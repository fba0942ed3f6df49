// Package dedupe remembers which raw QR payloads have already been accepted.
//
// Scanning stations routinely submit the same code several times; a payload
// is identified by a 128-bit murmur3 fingerprint of its trimmed text, so the
// deduper holds sixteen bytes per code instead of the whole string.
package dedupe

import (
	"context"
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

const defaultMaxSize = 50_000

// Deduper records seen QR payloads.
type Deduper interface {
	// SeenAndRecord atomically checks if payload was seen and records it if
	// not. Returns true if it was already seen.
	SeenAndRecord(ctx context.Context, payload string) bool

	// Forget removes payload, allowing it to be accepted again. Used when a
	// payload was recorded but could not be stored.
	Forget(ctx context.Context, payload string)

	// Seed records payloads known from storage, e.g. on startup.
	Seed(ctx context.Context, payloads []string)

	// Size returns the number of remembered payloads.
	Size() int64

	// Evicted returns how many fingerprints were dropped to stay within the
	// size bound. Once non-zero, a miss no longer proves a payload is new.
	Evicted() int64
}

type fingerprint struct{ hi, lo uint64 }

func fingerprintOf(payload string) fingerprint {
	hi, lo := murmur3.Sum128([]byte(strings.TrimSpace(payload)))
	return fingerprint{hi: hi, lo: lo}
}

// inMemoryDeduper keeps fingerprints in a map plus, when bounded, a ring in
// insertion order used to evict the oldest entry.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[fingerprint]struct{}
	ring    []fingerprint
	next    int
	maxSize int
	evicted int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[fingerprint]struct{})
	if d.maxSize > 0 {
		d.ring = make([]fingerprint, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, payload string) bool {
	fp := fingerprintOf(payload)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[fp]; ok {
		return true
	}
	d.record(fp)
	return false
}

// record adds fp, evicting the oldest fingerprint when bounded and full.
// Callers hold d.mu.
func (d *inMemoryDeduper) record(fp fingerprint) {
	d.seen[fp] = struct{}{}
	if d.maxSize <= 0 {
		return
	}
	if len(d.ring) < d.maxSize {
		d.ring = append(d.ring, fp)
		return
	}
	// A forgotten slot may still sit in the ring; only evict live entries.
	if old := d.ring[d.next]; old != fp {
		if _, live := d.seen[old]; live {
			delete(d.seen, old)
			d.evicted++
		}
	}
	d.ring[d.next] = fp
	d.next = (d.next + 1) % d.maxSize
}

func (d *inMemoryDeduper) Forget(_ context.Context, payload string) {
	fp := fingerprintOf(payload)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fp)
}

func (d *inMemoryDeduper) Seed(_ context.Context, payloads []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range payloads {
		fp := fingerprintOf(p)
		if _, ok := d.seen[fp]; !ok {
			d.record(fp)
		}
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

func (d *inMemoryDeduper) Evicted() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evicted
}
