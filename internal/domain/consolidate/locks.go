package consolidate

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

const defaultStripes = 64

// KeyLocks serialises work per consolidation key using a fixed set of
// mutexes. Distinct keys may share a stripe.
type KeyLocks struct {
	stripes []sync.Mutex
}

// NewKeyLocks creates n stripes; n <= 0 uses a default.
func NewKeyLocks(n int) *KeyLocks {
	if n <= 0 {
		n = defaultStripes
	}
	return &KeyLocks{stripes: make([]sync.Mutex, n)}
}

// Lock acquires key's stripe and returns the matching unlock.
func (l *KeyLocks) Lock(key string) func() {
	m := &l.stripes[l.stripe(key)]
	m.Lock()
	return m.Unlock
}

func (l *KeyLocks) stripe(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(l.stripes)))
}

// Len returns the number of stripes.
func (l *KeyLocks) Len() int { return len(l.stripes) }
