// Package async adapts a connection-oriented store to backend.Backend.
//
// The store is reached through a Dialer whose Open performs the handshake
// (connect, provision the storage area on first use). Operations issued
// before the handshake completes are held in a queue.Queue and replayed in
// submission order; if the handshake fails they are all rejected with the
// same *backend.InitError.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/unkn0wn-root/ttlkv/backend"
	"github.com/unkn0wn-root/ttlkv/backend/queue"
	"github.com/unkn0wn-root/ttlkv/internal/wire"
)

const defaultScanCount = 100

// Dialer performs the open handshake for a named storage area.
type Dialer interface {
	Open(ctx context.Context, name string) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, name string) (Conn, error)

func (f DialFunc) Open(ctx context.Context, name string) (Conn, error) { return f(ctx, name) }

// Record is one raw stored record as seen by a cursor.
type Record struct {
	Key string
	Raw []byte
}

// Conn is an open handle on the storage area. Values are opaque framed
// records; Conn must store and return them byte-for-byte.
type Conn interface {
	// Get returns (raw, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, raw []byte) error
	// Delete must succeed when key is absent.
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	// Scan returns one page of records starting at cursor and the cursor of
	// the next page; next == 0 means the walk is complete.
	Scan(ctx context.Context, cursor uint64, count int64) (page []Record, next uint64, err error)
	Close(ctx context.Context) error
}

type Config struct {
	Name      string // storage-area identifier passed to Dialer.Open
	Dialer    Dialer
	Now       func() time.Time // nil => time.Now
	ScanCount int64            // records per Scan page; 0 => 100
}

type Backend struct {
	name      string
	dialer    Dialer
	now       func() time.Time
	scanCount int64

	q *queue.Queue

	// conn is written once before q.Ready; executors read it after.
	conn Conn

	mu     sync.Mutex // guards closed and the conn handoff in Init/Close
	closed bool

	initOnce sync.Once
	initErr  error
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) *Backend {
	b := &Backend{
		name:      cfg.Name,
		dialer:    cfg.Dialer,
		now:       cfg.Now,
		scanCount: cfg.ScanCount,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.scanCount <= 0 {
		b.scanCount = defaultScanCount
	}
	b.q = queue.New(b.exec)
	return b
}

func (b *Backend) Type() backend.Type { return backend.TypeAsync }

// State exposes the readiness of the command queue.
func (b *Backend) State() queue.State { return b.q.State() }

// Init runs the handshake once; repeated calls return the first outcome.
func (b *Backend) Init(ctx context.Context) error {
	b.initOnce.Do(func() {
		if b.dialer == nil {
			b.initErr = b.fail(errNoDialer)
			return
		}
		conn, err := b.dialer.Open(ctx, b.name)
		if err != nil {
			b.initErr = b.fail(err)
			return
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			// Close won the race; the late connection is ours to release.
			_ = conn.Close(ctx)
			b.initErr = b.fail(errClosed)
			return
		}
		b.conn = conn
		b.mu.Unlock()
		b.q.Ready()
	})
	return b.initErr
}

func (b *Backend) fail(err error) error {
	ie := &backend.InitError{Backend: backend.TypeAsync, Err: err}
	b.q.Fail(ie)
	return ie
}

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

// Close releases the connection if the handshake succeeded. A handshake
// still in flight finishes as an init failure and closes its own conn.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

func (b *Backend) exec(ctx context.Context, cmd queue.Command) queue.Result {
	key := cmd.Key()
	switch cmd.Op() {
	case queue.OpGet:
		raw, ok, err := b.conn.Get(ctx, key)
		if err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		if !ok {
			return queue.Result{}
		}
		exp, payload, err := wire.DecodeRecord(raw)
		if err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		return queue.Result{
			Entry: backend.Entry{Key: key, ExpiresAt: time.UnixMilli(exp), Value: payload},
			Found: true,
		}
	case queue.OpSet:
		e := cmd.Payload()
		if err := b.conn.Put(ctx, key, wire.EncodeRecord(e.ExpiresAt.UnixMilli(), e.Value)); err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpRemove:
		if err := b.conn.Delete(ctx, key); err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpClear:
		if err := b.conn.Clear(ctx); err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		return queue.Result{}
	case queue.OpKeys:
		keys, err := b.conn.Keys(ctx)
		if err != nil {
			return queue.Result{Err: b.opErr(cmd, err)}
		}
		return queue.Result{Keys: keys}
	case queue.OpSweep:
		removed, err := b.sweep(ctx)
		return queue.Result{Removed: removed, Err: err}
	default:
		return queue.Result{Err: b.opErr(cmd, errUnknownOp)}
	}
}

// sweep walks the cursor once with now captured at the start. Failed
// deletions are collected and skipped; a failed page read ends the walk.
func (b *Backend) sweep(ctx context.Context) (int, error) {
	now := b.now().UnixMilli()
	var errs *multierror.Error
	removed := 0
	cursor := uint64(0)
	for {
		page, next, err := b.conn.Scan(ctx, cursor, b.scanCount)
		if err != nil {
			errs = multierror.Append(errs, &backend.OpError{Backend: backend.TypeAsync, Op: string(queue.OpSweep), Err: err})
			break
		}
		for _, rec := range page {
			exp, err := wire.PeekExpiry(rec.Raw)
			if err != nil || now < exp {
				continue
			}
			if err := b.conn.Delete(ctx, rec.Key); err != nil {
				errs = multierror.Append(errs, &backend.OpError{Backend: backend.TypeAsync, Op: string(queue.OpSweep), Key: rec.Key, Err: err})
				continue
			}
			removed++
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return removed, errs.ErrorOrNil()
}

func (b *Backend) opErr(cmd queue.Command, err error) error {
	return &backend.OpError{Backend: backend.TypeAsync, Op: string(cmd.Op()), Key: cmd.Key(), Err: err}
}
