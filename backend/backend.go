// Package backend defines the storage contract shared by the asynchronous and
// synchronous engines behind ttlkv.
//
// Backends persist opaque payloads (already serialized and compressed by the
// facade) together with an absolute expiry. They do not filter stale entries
// on read; the facade does that, and DetectExpiredKeys removes them physically.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Type names the engine that produced a value or an event.
type Type string

const (
	TypeAsync Type = "async"
	TypeSync  Type = "sync"
)

// Entry is one stored record.
type Entry struct {
	Key       string
	ExpiresAt time.Time
	Value     []byte
}

// Expired reports whether e is logically dead at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Backend is the uniform storage contract.
// Implementations must be safe for concurrent use once constructed.
type Backend interface {
	Type() Type

	// Init completes the backend handshake. Calls issued before Init returns
	// are held and replayed in submission order once the backend is ready.
	Init(ctx context.Context) error

	// Get returns (entry, true, nil) on hit, (Entry{}, false, nil) on miss.
	// Expired-but-unswept entries are returned as hits.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set upserts the record for key.
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error

	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	Clear(ctx context.Context) error

	// Keys returns all stored keys in backend-native order.
	Keys(ctx context.Context) ([]string, error)

	// DetectExpiredKeys removes every entry whose expiry has passed and
	// returns how many were removed. A non-nil error is advisory: it lists
	// deletions that failed while the sweep carried on.
	DetectExpiredKeys(ctx context.Context) (int, error)

	Close(ctx context.Context) error
}

// InitError is returned by Init and by every command submitted to a backend
// whose handshake failed. The same *InitError value is shared by all of them.
type InitError struct {
	Backend Type
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("ttlkv: %s backend init failed: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// OpError wraps a failure reported by the underlying store.
type OpError struct {
	Backend Type
	Op      string
	Key     string // empty for clear/keys/sweep
	Err     error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("ttlkv: %s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("ttlkv: %s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
