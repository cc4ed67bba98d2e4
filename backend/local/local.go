// Package local adapts a synchronous, always-available key/value store to
// backend.Backend. There is no handshake: the command queue is marked ready
// at construction and every command runs in the caller's goroutine.
package local

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/unkn0wn-root/ttlkv/backend"
	"github.com/unkn0wn-root/ttlkv/backend/queue"
	"github.com/unkn0wn-root/ttlkv/internal/wire"
)

// Store is a synchronous item store. Values are framed records and must be
// returned byte-for-byte. Implementations must be safe for concurrent use.
type Store interface {
	// GetItem returns (raw, true, nil) on hit and (nil, false, nil) on miss.
	GetItem(key string) ([]byte, bool, error)
	SetItem(key string, raw []byte) error
	// RemoveItem must succeed when key is absent.
	RemoveItem(key string) error
	Keys() ([]string, error)
	Clear() error
	Close() error
}

type Config struct {
	Store Store
	Now   func() time.Time // nil => time.Now
}

type Backend struct {
	store Store
	now   func() time.Time
	q     *queue.Queue
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) *Backend {
	b := &Backend{store: cfg.Store, now: cfg.Now}
	if b.store == nil {
		b.store = NewMemoryStore()
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.q = queue.New(b.exec)
	b.q.Ready()
	return b
}

func (b *Backend) Type() backend.Type { return backend.TypeSync }

func (b *Backend) Init(context.Context) error { return nil }

func (b *Backend) Get(ctx context.Context, key string) (backend.Entry, bool, error) {
	res, err := b.q.Do(ctx, queue.Get(key))
	if err != nil {
		return backend.Entry{}, false, err
	}
	return res.Entry, res.Found, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := b.q.Do(ctx, queue.Set(key, value, expiresAt))
	return err
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	_, err := b.q.Do(ctx, queue.Remove(key))
	return err
}

func (b *Backend) Clear(ctx context.Context) error {
	_, err := b.q.Do(ctx, queue.Clear())
	return err
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	res, err := b.q.Do(ctx, queue.Keys())
	if err != nil {
		return nil, err
	}
	return res.Keys, nil
}

func (b *Backend) DetectExpiredKeys(ctx context.Context) (int, error) {
	res, err := b.q.Do(ctx, queue.Sweep())
	return res.Removed, err
}

func (b *Backend) Close(context.Context) error { return b.store.Close() }

func (b *Backend) exec(_ context.Context, cmd queue.Command) queue.Result {
	key := cmd.Key()
	switch cmd.Op() {
	case queue.OpGet:
		raw, ok, err := b.store.GetItem(key)
		if err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		if !ok {
			return queue.Result{}
		}
		exp, payload, err := wire.DecodeRecord(raw)
		if err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		return queue.Result{
			Entry: backend.Entry{Key: key, ExpiresAt: time.UnixMilli(exp), Value: payload},
			Found: true,
		}
	case queue.OpSet:
		e := cmd.Payload()
		if err := b.store.SetItem(key, wire.EncodeRecord(e.ExpiresAt.UnixMilli(), e.Value)); err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpRemove:
		if err := b.store.RemoveItem(key); err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpClear:
		if err := b.store.Clear(); err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpKeys:
		keys, err := b.store.Keys()
		if err != nil {
			return queue.Result{Err: opErr(cmd, err)}
		}
		return queue.Result{Keys: keys}
	case queue.OpSweep:
		removed, err := b.sweep()
		return queue.Result{Removed: removed, Err: err}
	default:
		return queue.Result{Err: opErr(cmd, errUnknownOp)}
	}
}

// sweep snapshots the key set, then deletes expired records by key.
// Records that vanished or do not parse are skipped.
func (b *Backend) sweep() (int, error) {
	now := b.now().UnixMilli()
	keys, err := b.store.Keys()
	if err != nil {
		return 0, &backend.OpError{Backend: backend.TypeSync, Op: string(queue.OpSweep), Err: err}
	}
	var errs *multierror.Error
	removed := 0
	for _, k := range keys {
		raw, ok, err := b.store.GetItem(k)
		if err != nil || !ok {
			continue
		}
		exp, err := wire.PeekExpiry(raw)
		if err != nil || now < exp {
			continue
		}
		if err := b.store.RemoveItem(k); err != nil {
			errs = multierror.Append(errs, &backend.OpError{Backend: backend.TypeSync, Op: string(queue.OpSweep), Key: k, Err: err})
			continue
		}
		removed++
	}
	return removed, errs.ErrorOrNil()
}

func opErr(cmd queue.Command, err error) error {
	return &backend.OpError{Backend: backend.TypeSync, Op: string(cmd.Op()), Key: cmd.Key(), Err: err}
}
