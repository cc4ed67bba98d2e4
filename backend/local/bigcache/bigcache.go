// Package bigcache implements local.Store on allegro/bigcache.
//
// BigCache has no per-entry TTL, only a global LifeWindow. Set LifeWindow to
// at least the facade's maximum expiry horizon so entries are never evicted
// before ttlkv considers them expired.
package bigcache

import (
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/ttlkv/backend/local"
)

type Store struct {
	c *bc.BigCache
}

var _ local.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // required; >= max expiry horizon
	CleanWindow        time.Duration // 0 => bigcache default
	Shards             int           // power of two; 0 => bigcache default
	MaxEntriesInWindow int           // sizing hint; 0 => 1024
	MaxEntrySize       int           // sizing hint in bytes; 0 => bigcache default
	HardMaxCacheSizeMB int           // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache store: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	// bigcache preallocates MaxEntriesInWindow*MaxEntrySize bytes
	conf.MaxEntriesInWindow = 1024
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) GetItem(key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) SetItem(key string, raw []byte) error {
	return s.c.Set(key, raw)
}

func (s *Store) RemoveItem(key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Keys walks the shard iterator. Order follows bigcache's internal layout.
func (s *Store) Keys() ([]string, error) {
	keys := make([]string, 0, s.c.Len())
	it := s.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry evicted between SetNext and Value
			continue
		}
		keys = append(keys, e.Key())
	}
	return keys, nil
}

func (s *Store) Clear() error { return s.c.Reset() }

func (s *Store) Close() error { return s.c.Close() }
