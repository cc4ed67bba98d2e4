package ttlkv

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/unkn0wn-root/ttlkv/backend"
	"github.com/unkn0wn-root/ttlkv/backend/async"
	"github.com/unkn0wn-root/ttlkv/backend/local"
	"github.com/unkn0wn-root/ttlkv/backend/local/bigcache"
	c "github.com/unkn0wn-root/ttlkv/codec"
	"github.com/unkn0wn-root/ttlkv/compress"
	"github.com/unkn0wn-root/ttlkv/internal/memo"
)

type storage[V any] struct {
	name       string
	db         backend.Backend
	codec      c.Codec[V]
	comp       compress.Compressor
	log        Logger
	now        func() time.Time
	limit      int
	maxExpires time.Duration
	sizeOf     SizeFunc
	equal      EqualFunc[V]
	memo       *memo.Memo

	obs   *registry[V]
	sweep *sweeper

	ready   chan struct{} // closed once init finished
	initErr error

	closeOnce sync.Once
	closeErr  error
}

func newStorage[V any](opts Options[V]) (*storage[V], error) {
	if opts.Limit < 0 {
		return nil, fmt.Errorf("ttlkv: negative limit %d", opts.Limit)
	}
	if opts.MaxExpiresTime < 0 {
		return nil, fmt.Errorf("ttlkv: negative max expires time %s", opts.MaxExpiresTime)
	}

	s := &storage[V]{
		obs:   newRegistry[V](),
		ready: make(chan struct{}),
	}

	// defaults
	s.name = coalesce(opts.Name, DefaultName)
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.limit = coalesce(opts.Limit, DefaultLimit)
	s.maxExpires = coalesce(opts.MaxExpiresTime, DefaultMaxExpiresTime)
	interval := coalesce(opts.SweepInterval, DefaultSweepInterval)

	s.codec = opts.Codec
	if s.codec == nil {
		s.codec = c.JSON[V]{}
	}
	s.comp = coalesce[compress.Compressor](opts.Compressor, compress.S2{})
	s.now = opts.Now
	if s.now == nil {
		s.now = time.Now
	}
	s.sizeOf = opts.SizeFunc
	if s.sizeOf == nil {
		s.sizeOf = func(p []byte) int { return len(p) }
	}
	s.equal = opts.Equal
	if s.equal == nil {
		s.equal = func(a, b V) bool { return reflect.DeepEqual(a, b) }
	}

	db, err := s.selectBackend(opts)
	if err != nil {
		return nil, err
	}
	s.db = db

	if opts.MemoBytes > 0 {
		m, err := memo.New(opts.MemoBytes)
		if err != nil {
			_ = db.Close(context.Background())
			return nil, err
		}
		s.memo = m
	}

	s.sweep = newSweeper(interval, s.db.DetectExpiredKeys, s.log)
	s.obs.on(ChannelChange, opts.OnChange)
	s.obs.on(ChannelError, opts.OnError)

	s.log.Info("storage backend selected", Fields{"backend": s.db.Type(), "name": s.name})
	go s.init()
	return s, nil
}

// selectBackend picks async when a Dialer is configured, sync otherwise.
// The choice is final for the lifetime of the storage.
func (s *storage[V]) selectBackend(opts Options[V]) (backend.Backend, error) {
	if opts.Dialer != nil {
		return async.New(async.Config{Name: s.name, Dialer: opts.Dialer, Now: s.now}), nil
	}
	store := opts.LocalStore
	if store == nil {
		bs, err := bigcache.New(bigcache.Config{LifeWindow: s.maxExpires + time.Hour})
		if err != nil {
			return nil, fmt.Errorf("ttlkv: default local store: %w", err)
		}
		store = bs
	}
	return local.New(local.Config{Store: store, Now: s.now}), nil
}

func (s *storage[V]) init() {
	defer close(s.ready)
	ctx := context.Background()
	if err := s.db.Init(ctx); err != nil {
		s.initErr = err
		s.log.Error("storage init failed", Fields{"backend": s.db.Type(), "err": err})
		s.emitError(Event[V]{Method: "init", Err: err})
		return
	}
	// startup sweep, then the recurring one
	_, _ = s.sweep.runOnce(ctx)
	s.sweep.start()
}

func (s *storage[V]) Backend() backend.Type { return s.db.Type() }

func (s *storage[V]) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the sweeper and closes the backend. It waits for an in-flight
// init (bounded by ctx) so a late handshake does not leak its connection.
func (s *storage[V]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		select {
		case <-s.ready:
		case <-ctx.Done():
		}
		s.sweep.stop()
		if s.memo != nil {
			s.memo.Close()
		}
		s.closeErr = s.db.Close(ctx)
	})
	return s.closeErr
}

func (s *storage[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	e, ok, err := s.load(ctx, key)
	if err != nil {
		s.emitError(Event[V]{Method: "get", Key: key, Err: err})
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, _, err := s.decode(e)
	if err != nil {
		s.emitError(Event[V]{Method: "get", Key: key, Err: err})
		return zero, false, err
	}
	return v, true, nil
}

func (s *storage[V]) Set(ctx context.Context, key string, value V, expiresAt time.Time) error {
	// Records carry unix millis; validate what will actually be stored.
	if !expiresAt.IsZero() {
		expiresAt = time.UnixMilli(expiresAt.UnixMilli())
	}
	ev := Event[V]{Method: "set", Key: key, Value: &value, Expires: expiresAt}
	fail := func(err error) error {
		ev.Err = err
		s.emitError(ev)
		return err
	}

	if err := s.validateExpiry(key, expiresAt); err != nil {
		return fail(err)
	}
	plain, err := s.codec.Encode(value)
	if err != nil {
		return fail(&CodecError{Key: key, Op: "encode", Err: err})
	}
	payload, err := s.comp.Compress(plain)
	if err != nil {
		return fail(&CodecError{Key: key, Op: "compress", Err: err})
	}
	ev.Size = s.sizeOf(payload)
	if ev.Size > s.limit {
		return fail(&SizeLimitError{Key: key, Size: ev.Size, Limit: s.limit})
	}

	old, hadOld, err := s.prior(ctx, key)
	if err != nil {
		return err
	}

	if err := s.db.Set(ctx, key, payload, expiresAt); err != nil {
		return fail(err)
	}
	if s.memo != nil {
		s.memo.Put(payload, plain)
	}

	if !hadOld || !s.equal(old, value) {
		ev.NewValue = &value
		if hadOld {
			ev.OldValue = &old
		}
		s.emitChange(ev)
	}
	return nil
}

func (s *storage[V]) Remove(ctx context.Context, key string) error {
	old, hadOld, err := s.prior(ctx, key)
	if err != nil {
		return err
	}
	if err := s.db.Remove(ctx, key); err != nil {
		s.emitError(Event[V]{Method: "remove", Key: key, Err: err})
		return err
	}
	ev := Event[V]{Method: "remove", Key: key}
	if hadOld {
		ev.OldValue = &old
	}
	s.emitChange(ev)
	return nil
}

func (s *storage[V]) Clear(ctx context.Context) error {
	if err := s.db.Clear(ctx); err != nil {
		s.emitError(Event[V]{Method: "clear", Err: err})
		return err
	}
	s.emitChange(Event[V]{Method: "clear"})
	return nil
}

func (s *storage[V]) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.db.Keys(ctx)
	if err != nil {
		s.emitError(Event[V]{Method: "keys", Err: err})
		return nil, err
	}
	return keys, nil
}

func (s *storage[V]) Sweep(ctx context.Context) (int, error) {
	return s.sweep.runOnce(ctx)
}

func (s *storage[V]) On(ch Channel, fn Listener[V]) func() {
	return s.obs.on(ch, fn)
}

func (s *storage[V]) validateExpiry(key string, expiresAt time.Time) error {
	now := s.now()
	var reason string
	switch {
	case expiresAt.IsZero():
		reason = "expires must be set"
	case !expiresAt.After(now):
		reason = "expires must be later than now"
	case expiresAt.Sub(now) > s.maxExpires:
		reason = fmt.Sprintf("max expires time is %s", s.maxExpires)
	default:
		return nil
	}
	return &ValidationError{Key: key, ExpiresAt: expiresAt, Reason: reason}
}

// load reads the live entry for key; expired entries read as absent.
func (s *storage[V]) load(ctx context.Context, key string) (backend.Entry, bool, error) {
	e, ok, err := s.db.Get(ctx, key)
	if err != nil || !ok {
		return backend.Entry{}, false, err
	}
	if e.Expired(s.now()) {
		return backend.Entry{}, false, nil
	}
	return e, true, nil
}

// prior reads the current value for change diffing. Backend failures fail
// the calling operation (reported as a get error); an undecodable prior
// value is treated as absent so it can still be overwritten.
func (s *storage[V]) prior(ctx context.Context, key string) (V, bool, error) {
	var zero V
	e, ok, err := s.load(ctx, key)
	if err != nil {
		s.emitError(Event[V]{Method: "get", Key: key, Err: err})
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, _, err := s.decode(e)
	if err != nil {
		s.log.Warn("prior value undecodable; treating as absent", Fields{"key": key, "err": err})
		return zero, false, nil
	}
	return v, true, nil
}

func (s *storage[V]) decode(e backend.Entry) (V, []byte, error) {
	var zero V
	plain, err := s.decompress(e.Value)
	if err != nil {
		return zero, nil, &CodecError{Key: e.Key, Op: "decompress", Err: err}
	}
	v, err := s.codec.Decode(plain)
	if err != nil {
		return zero, nil, &CodecError{Key: e.Key, Op: "decode", Err: err}
	}
	return v, plain, nil
}

func (s *storage[V]) decompress(payload []byte) ([]byte, error) {
	if s.memo != nil {
		if plain, ok := s.memo.Get(payload); ok {
			return plain, nil
		}
	}
	plain, err := s.comp.Decompress(payload)
	if err != nil {
		return nil, err
	}
	if s.memo != nil {
		s.memo.Put(payload, plain)
	}
	return plain, nil
}

func (s *storage[V]) emitChange(ev Event[V]) {
	ev.Type = ChannelChange
	ev.DB = s.db.Type()
	s.obs.emit(ev)
}

func (s *storage[V]) emitError(ev Event[V]) {
	ev.Type = ChannelError
	ev.DB = s.db.Type()
	s.log.Debug("storage operation failed", Fields{"method": ev.Method, "key": ev.Key, "err": ev.Err})
	s.obs.emit(ev)
}
