package ttlkv

import (
	"context"
	"time"

	"github.com/unkn0wn-root/ttlkv/backend"
	"github.com/unkn0wn-root/ttlkv/backend/async"
	"github.com/unkn0wn-root/ttlkv/backend/local"
	c "github.com/unkn0wn-root/ttlkv/codec"
	"github.com/unkn0wn-root/ttlkv/compress"
)

// SizeFunc estimates the size of a compressed payload for the Limit check.
type SizeFunc func(payload []byte) int

// EqualFunc decides whether a Set changed the stored value.
type EqualFunc[V any] func(old, new V) bool

// Storage is the public, backend-agnostic API. V is the caller's value type.
type Storage[V any] interface {
	// Backend reports which engine was selected in New.
	Backend() backend.Type
	// Ready waits for backend initialization and returns its outcome.
	Ready(ctx context.Context) error
	Close(ctx context.Context) error

	// Get returns (v, true, nil) for a live entry and (zero, false, nil) when
	// the key is absent or expired.
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	// Set stores value until expiresAt, which must lie in (now, now+MaxExpiresTime].
	Set(ctx context.Context, key string, value V, expiresAt time.Time) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)

	// Sweep runs one expiration sweep now and returns how many entries it removed.
	Sweep(ctx context.Context) (int, error)

	// On registers fn for ch; the returned func unregisters it.
	On(ch Channel, fn Listener[V]) (off func())
}

// Options tune the storage. The zero value selects the sync backend over an
// in-process BigCache store with JSON values and S2 compression.
type Options[V any] struct {
	Codec      c.Codec[V]          // nil => codec.JSON[V]
	Compressor compress.Compressor // nil => compress.S2{}

	Limit          int           // max compressed payload bytes; 0 => 1 MiB
	Name           string        // storage-area identifier; "" => "idb:storage"
	MaxExpiresTime time.Duration // max expiresAt-now; 0 => 8 days
	SweepInterval  time.Duration // 0 => 10s

	// Dialer signals async capability. When set, the async backend is used
	// and LocalStore is ignored.
	Dialer     async.Dialer
	LocalStore local.Store // nil => BigCache sized for MaxExpiresTime

	SizeFunc SizeFunc     // nil => len(payload)
	Equal    EqualFunc[V] // nil => reflect.DeepEqual
	// MemoBytes bounds a cache of decompressed payloads; 0 disables it.
	MemoBytes int64

	// Listeners registered before initialization starts, so they observe
	// an init failure.
	OnChange Listener[V]
	OnError  Listener[V]

	Logger Logger           // if nil, NopLogger is used
	Now    func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Storage[V], error) {
	return newStorage[V](opts)
}
