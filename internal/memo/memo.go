// Package memo caches decompressed payloads keyed by their compressed bytes.
//
// The key is the stored payload itself, so an entry can never be stale: a
// rewritten record has different bytes and misses. Sweeps and removals need
// no invalidation.
package memo

import (
	"errors"

	"github.com/dgraph-io/ristretto"
)

type Memo struct {
	c *ristretto.Cache
}

// New returns a memo bounded to roughly maxBytes of decompressed data.
func New(maxBytes int64) (*Memo, error) {
	if maxBytes <= 0 {
		return nil, errors.New("memo: maxBytes must be positive")
	}
	// ristretto recommends ~10x counters per expected item; assume ~1KiB items.
	counters := maxBytes / 1024 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Memo{c: c}, nil
}

// Get returns the decompressed form of compressed, if cached.
// The returned slice is shared; callers must not modify it.
func (m *Memo) Get(compressed []byte) ([]byte, bool) {
	v, ok := m.c.Get(compressed)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		m.c.Del(compressed)
		return nil, false
	}
	return b, true
}

// Put records plain as the decompressed form of compressed. Admission is
// best-effort; the cache may drop the entry under pressure.
func (m *Memo) Put(compressed, plain []byte) {
	m.c.Set(compressed, plain, int64(len(plain)))
}

// Wait blocks until buffered writes are applied.
func (m *Memo) Wait() { m.c.Wait() }

func (m *Memo) Close() {
	m.c.Close()
}
