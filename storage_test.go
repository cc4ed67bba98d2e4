package ttlkv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unkn0wn-root/ttlkv/backend"
	"github.com/unkn0wn-root/ttlkv/backend/async"
	"github.com/unkn0wn-root/ttlkv/backend/local"
	c "github.com/unkn0wn-root/ttlkv/codec"
	"github.com/unkn0wn-root/ttlkv/compress"
)

type item struct {
	X int `json:"x"`
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.UnixMilli(1_700_000_000_000)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects events per channel.
type recorder struct {
	mu     sync.Mutex
	change []Event[item]
	errs   []Event[item]
}

func (r *recorder) onChange(ev Event[item]) {
	r.mu.Lock()
	r.change = append(r.change, ev)
	r.mu.Unlock()
}

func (r *recorder) onError(ev Event[item]) {
	r.mu.Lock()
	r.errs = append(r.errs, ev)
	r.mu.Unlock()
}

func (r *recorder) changes() []Event[item] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event[item](nil), r.change...)
}

func (r *recorder) errors() []Event[item] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event[item](nil), r.errs...)
}

func newTestStorage(t *testing.T, optsOpt func(*Options[item])) (*storage[item], *clock, *recorder) {
	t.Helper()
	clk := newClock()
	rec := &recorder{}
	opts := Options[item]{
		LocalStore:    local.NewMemoryStore(),
		SweepInterval: time.Hour,
		Now:           clk.Now,
		OnChange:      rec.onChange,
		OnError:       rec.onError,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := newStorage[item](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, clk, rec
}

// ==============================
// Round trip and validation
// ==============================

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newTestStorage(t, nil)

	if s.Backend() != backend.TypeSync {
		t.Fatalf("backend = %s, want sync", s.Backend())
	}
	if _, ok, err := s.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("Get miss expected, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || got != (item{X: 1}) {
		t.Fatalf("Get after set: ok=%v err=%v got=%v", ok, err, got)
	}
}

func TestSetValidatesExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)
	now := clk.Now()

	cases := map[string]time.Time{
		"zero":           {},
		"now":            now,
		"past":           now.Add(-time.Second),
		"beyond horizon": now.Add(DefaultMaxExpiresTime + time.Millisecond),
	}
	for name, exp := range cases {
		err := s.Set(ctx, "k", item{X: 1}, exp)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Key != "k" {
			t.Fatalf("%s: want *ValidationError for key k, got %#v", name, err)
		}
	}
	if keys, _ := s.Keys(ctx); len(keys) != 0 {
		t.Fatalf("rejected sets must not write, keys = %v", keys)
	}
	if n := len(rec.errors()); n != len(cases) {
		t.Fatalf("error events = %d, want %d", n, len(cases))
	}
	if n := len(rec.changes()); n != 0 {
		t.Fatalf("change events = %d, want 0", n)
	}

	// Exactly at the horizon is accepted.
	if err := s.Set(ctx, "k", item{X: 1}, now.Add(DefaultMaxExpiresTime)); err != nil {
		t.Fatalf("Set at horizon: %v", err)
	}
}

func TestSetValidatesStoredMillisecondExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)
	clk.Advance(100 * time.Microsecond)
	now := clk.Now()

	// Floors to the current millisecond, which is not in the future.
	if err := s.Set(ctx, "a", item{X: 1}, now.Add(500*time.Microsecond)); !errors.Is(err, ErrValidation) {
		t.Fatalf("sub-millisecond expiry: err = %v, want ErrValidation", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("rejected set must not write")
	}

	exp := now.Add(1500 * time.Microsecond)
	if err := s.Set(ctx, "a", item{X: 1}, exp); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok, err := s.Get(ctx, "a"); err != nil || !ok || got != (item{X: 1}) {
		t.Fatalf("Get right after Set: ok=%v err=%v got=%v", ok, err, got)
	}
	evs := rec.changes()
	if len(evs) != 1 || !evs[0].Expires.Equal(time.UnixMilli(exp.UnixMilli())) {
		t.Fatalf("change event expires = %+v", evs)
	}
}

func TestSizeLimit(t *testing.T) {
	ctx := context.Background()
	store := local.NewMemoryStore()
	clk := newClock()

	newStr := func(limit int) *storage[string] {
		s, err := newStorage[string](Options[string]{
			Codec:         c.String{},
			Compressor:    compress.None{},
			Limit:         limit,
			LocalStore:    store,
			SweepInterval: time.Hour,
			Now:           clk.Now,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	}

	value := strings.Repeat("x", 20)
	small := newStr(10)
	err := small.Set(ctx, "k", value, clk.Now().Add(time.Minute))
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("err = %v, want ErrSizeLimit", err)
	}
	var se *SizeLimitError
	if !errors.As(err, &se) || se.Size != 20 || se.Limit != 10 {
		t.Fatalf("SizeLimitError = %#v", err)
	}
	if _, ok, _ := small.Get(ctx, "k"); ok {
		t.Fatalf("oversized value must not be written")
	}

	// Same call succeeds once the limit is raised.
	big := newStr(20)
	if err := big.Set(ctx, "k", value, clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Set under raised limit: %v", err)
	}
	if got, ok, _ := big.Get(ctx, "k"); !ok || got != value {
		t.Fatalf("Get = %q ok=%v", got, ok)
	}
}

func TestCustomSizeFunc(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newTestStorage(t, func(o *Options[item]) {
		o.Limit = 100
		o.SizeFunc = func([]byte) int { return 101 }
	})
	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("err = %v, want ErrSizeLimit", err)
	}
}

func TestNewRejectsNegativeOptions(t *testing.T) {
	if _, err := New[item](Options[item]{Limit: -1}); err == nil {
		t.Fatalf("negative Limit should fail")
	}
	if _, err := New[item](Options[item]{MaxExpiresTime: -time.Second}); err == nil {
		t.Fatalf("negative MaxExpiresTime should fail")
	}
}

// ==============================
// Expiry and sweeping
// ==============================

func TestExpiredEntriesReadAsAbsent(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newTestStorage(t, nil)

	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Second)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(time.Second) // now == expiresAt
	if _, ok, err := s.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("expired entry should miss, ok=%v err=%v", ok, err)
	}
	// Still physically present until a sweep.
	if keys, _ := s.Keys(ctx); !cmp.Equal(keys, []string{"a"}) {
		t.Fatalf("keys before sweep = %v", keys)
	}
}

func TestSetSweepKeysScenario(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newTestStorage(t, nil)

	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(1000*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "b", item{X: 2}, clk.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(1001 * time.Millisecond)

	n, err := s.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1, nil", n, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}

	// Idempotent.
	if n, err := s.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("second Sweep = %d, %v; want 0, nil", n, err)
	}
}

func TestStartupSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	store := local.NewMemoryStore()
	clk := newClock()

	first, err := newStorage[item](Options[item]{LocalStore: store, SweepInterval: time.Hour, Now: clk.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Set(ctx, "old", item{X: 1}, clk.Now().Add(time.Second)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	clk.Advance(time.Minute)
	second, err := newStorage[item](Options[item]{LocalStore: store, SweepInterval: time.Hour, Now: clk.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer second.Close(ctx)
	if err := second.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if keys, _ := second.Keys(ctx); len(keys) != 0 {
		t.Fatalf("startup sweep left %v", keys)
	}
}

// ==============================
// Change and error events
// ==============================

func TestChangeEventsOnlyWhenValueDiffers(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)
	exp := clk.Now().Add(time.Minute)

	for _, v := range []item{{X: 1}, {X: 1}, {X: 2}, {X: 2}, {X: 3}} {
		if err := s.Set(ctx, "a", v, exp); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	evs := rec.changes()
	if len(evs) != 3 {
		t.Fatalf("change events = %d, want 3", len(evs))
	}

	first := evs[0]
	if first.Type != ChannelChange || first.DB != backend.TypeSync || first.Method != "set" || first.Key != "a" {
		t.Fatalf("first event = %+v", first)
	}
	if first.OldValue != nil || first.NewValue == nil || *first.NewValue != (item{X: 1}) {
		t.Fatalf("first event values: old=%v new=%v", first.OldValue, first.NewValue)
	}
	if !first.Expires.Equal(exp) || first.Size <= 0 {
		t.Fatalf("first event expires=%v size=%d", first.Expires, first.Size)
	}

	second := evs[1]
	if second.OldValue == nil || *second.OldValue != (item{X: 1}) || *second.NewValue != (item{X: 2}) {
		t.Fatalf("second event values: old=%v new=%v", second.OldValue, second.NewValue)
	}
}

func TestRewriteAfterExpiryIsAChange(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)

	_ = s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Second))
	clk.Advance(2 * time.Second)
	_ = s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Second))

	evs := rec.changes()
	if len(evs) != 2 {
		t.Fatalf("change events = %d, want 2", len(evs))
	}
	if evs[1].OldValue != nil {
		t.Fatalf("expired prior value should be absent, got %v", *evs[1].OldValue)
	}
}

func TestCustomEqual(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, func(o *Options[item]) {
		o.Equal = func(a, b item) bool { return a.X/10 == b.X/10 }
	})
	exp := clk.Now().Add(time.Minute)
	_ = s.Set(ctx, "a", item{X: 1}, exp)
	_ = s.Set(ctx, "a", item{X: 5}, exp)
	_ = s.Set(ctx, "a", item{X: 15}, exp)
	if n := len(rec.changes()); n != 2 {
		t.Fatalf("change events = %d, want 2", n)
	}
}

func TestRemoveEmitsChange(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)

	_ = s.Set(ctx, "a", item{X: 7}, clk.Now().Add(time.Minute))
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	evs := rec.changes()
	if len(evs) != 3 {
		t.Fatalf("change events = %d, want 3", len(evs))
	}
	rm := evs[1]
	if rm.Method != "remove" || rm.Key != "a" || rm.NewValue != nil || rm.OldValue == nil || *rm.OldValue != (item{X: 7}) {
		t.Fatalf("remove event = %+v", rm)
	}
	if evs[2].OldValue != nil {
		t.Fatalf("remove of absent key should carry no old value")
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("removed key still readable")
	}
}

type failingStore struct {
	*local.MemoryStore
	removeErr error
	getErr    error
}

func (s *failingStore) RemoveItem(key string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.MemoryStore.RemoveItem(key)
}

func (s *failingStore) GetItem(key string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.MemoryStore.GetItem(key)
}

func TestRemoveFailureEmitsErrorOnly(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	store := &failingStore{MemoryStore: local.NewMemoryStore(), removeErr: boom}
	s, _, rec := newTestStorage(t, func(o *Options[item]) { o.LocalStore = store })

	err := s.Remove(ctx, "a")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	var oe *OpError
	if !errors.As(err, &oe) || oe.Op != "remove" || oe.Key != "a" {
		t.Fatalf("want *OpError for remove a, got %#v", err)
	}
	if n := len(rec.changes()); n != 0 {
		t.Fatalf("change events = %d, want 0", n)
	}
	errs := rec.errors()
	if len(errs) != 1 || errs[0].Method != "remove" || !errors.Is(errs[0].Err, boom) {
		t.Fatalf("error events = %+v", errs)
	}
}

func TestPriorReadFailureFailsSet(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("read failed")
	store := &failingStore{MemoryStore: local.NewMemoryStore(), getErr: boom}
	s, clk, rec := newTestStorage(t, func(o *Options[item]) { o.LocalStore = store })

	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want read failure", err)
	}
	if keys, _ := store.Keys(); len(keys) != 0 {
		t.Fatalf("set must not persist after failed prior read, keys = %v", keys)
	}
	errs := rec.errors()
	if len(errs) != 1 || errs[0].Method != "get" {
		t.Fatalf("error events = %+v", errs)
	}
}

func TestUndecodablePriorIsOverwritten(t *testing.T) {
	ctx := context.Background()
	store := local.NewMemoryStore()
	clk := newClock()

	raw, err := newStorage[string](Options[string]{
		Codec: c.String{}, LocalStore: store, SweepInterval: time.Hour, Now: clk.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := raw.Set(ctx, "a", "not json", clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Set raw: %v", err)
	}

	s, _, rec := newTestStorage(t, func(o *Options[item]) {
		o.LocalStore = store
		o.Now = clk.Now
	})
	if _, _, err := s.Get(ctx, "a"); err == nil {
		t.Fatalf("Get of undecodable value should fail")
	}
	var ce *CodecError
	if errs := rec.errors(); len(errs) != 1 || !errors.As(errs[0].Err, &ce) || ce.Op != "decode" {
		t.Fatalf("error events = %+v", errs)
	}
	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Set over undecodable: %v", err)
	}
	evs := rec.changes()
	if len(evs) != 1 || evs[0].OldValue != nil {
		t.Fatalf("change events = %+v", evs)
	}
}

func TestClearEmitsChange(t *testing.T) {
	ctx := context.Background()
	s, clk, rec := newTestStorage(t, nil)
	_ = s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute))
	_ = s.Set(ctx, "b", item{X: 2}, clk.Now().Add(time.Minute))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys, _ := s.Keys(ctx); len(keys) != 0 {
		t.Fatalf("keys after clear = %v", keys)
	}
	evs := rec.changes()
	if last := evs[len(evs)-1]; last.Method != "clear" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestOnOff(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newTestStorage(t, nil)

	var n int32
	off := s.On(ChannelChange, func(Event[item]) { atomic.AddInt32(&n, 1) })
	_ = s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute))
	off()
	off() // idempotent
	_ = s.Set(ctx, "a", item{X: 2}, clk.Now().Add(time.Minute))

	if got := atomic.LoadInt32(&n); got != 1 {
		t.Fatalf("listener calls = %d, want 1", got)
	}
	if s.obs.count(ChannelChange) != 1 { // the recorder registered via Options
		t.Fatalf("subscribers = %d, want 1", s.obs.count(ChannelChange))
	}
}

// ==============================
// Async backend
// ==============================

type memConn struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemConn() *memConn { return &memConn{m: make(map[string][]byte)} }

func (c *memConn) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memConn) Put(_ context.Context, key string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = append([]byte(nil), raw...)
	return nil
}

func (c *memConn) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func (c *memConn) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string][]byte)
	return nil
}

func (c *memConn) Keys(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Scan returns everything in a single page.
func (c *memConn) Scan(_ context.Context, _ uint64, _ int64) ([]async.Record, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := make([]async.Record, 0, len(c.m))
	for k, v := range c.m {
		page = append(page, async.Record{Key: k, Raw: v})
	}
	return page, 0, nil
}

func (c *memConn) Close(context.Context) error { return nil }

func gatedDialer(conn async.Conn, gate <-chan struct{}, err error) async.Dialer {
	return async.DialFunc(func(ctx context.Context, _ string) (async.Conn, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

func TestAsyncQueuesUntilReady(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	conn := newMemConn()
	s, clk, rec := newTestStorage(t, func(o *Options[item]) {
		o.Dialer = gatedDialer(conn, gate, nil)
	})
	if s.Backend() != backend.TypeAsync {
		t.Fatalf("backend = %s, want async", s.Backend())
	}

	done := make(chan error, 1)
	go func() { done <- s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)) }()

	select {
	case err := <-done:
		t.Fatalf("Set returned before handshake: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("queued Set: %v", err)
	}
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || got != (item{X: 1}) {
		t.Fatalf("Get: ok=%v err=%v got=%v", ok, err, got)
	}
	if evs := rec.changes(); len(evs) != 1 || evs[0].DB != backend.TypeAsync {
		t.Fatalf("change events = %+v", evs)
	}
}

func TestAsyncInitFailurePropagates(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	close(gate)
	dialErr := errors.New("handshake refused")
	s, clk, rec := newTestStorage(t, func(o *Options[item]) {
		o.Dialer = gatedDialer(nil, gate, dialErr)
	})

	err := s.Ready(ctx)
	var ie *InitError
	if !errors.As(err, &ie) || !errors.Is(err, dialErr) {
		t.Fatalf("Ready = %v, want InitError wrapping dial error", err)
	}

	if _, _, err := s.Get(ctx, "a"); !errors.Is(err, dialErr) {
		t.Fatalf("Get = %v", err)
	}
	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); !errors.Is(err, dialErr) {
		t.Fatalf("Set = %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, dialErr) {
		t.Fatalf("Remove = %v", err)
	}
	if _, err := s.Keys(ctx); !errors.Is(err, dialErr) {
		t.Fatalf("Keys = %v", err)
	}
	if _, err := s.Sweep(ctx); !errors.Is(err, dialErr) {
		t.Fatalf("Sweep = %v", err)
	}

	var sawInit bool
	for _, ev := range rec.errors() {
		if ev.Method == "init" && errors.Is(ev.Err, dialErr) {
			sawInit = true
		}
	}
	if !sawInit {
		t.Fatalf("no init error event, got %+v", rec.errors())
	}
	if n := len(rec.changes()); n != 0 {
		t.Fatalf("change events = %d, want 0", n)
	}
}

func TestAsyncSweep(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	close(gate)
	s, clk, _ := newTestStorage(t, func(o *Options[item]) {
		o.Dialer = gatedDialer(newMemConn(), gate, nil)
	})
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	_ = s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Second))
	_ = s.Set(ctx, "b", item{X: 1}, clk.Now().Add(time.Hour))
	clk.Advance(2 * time.Second)

	if n, err := s.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if keys, _ := s.Keys(ctx); !cmp.Equal(keys, []string{"b"}) {
		t.Fatalf("keys = %v", keys)
	}
}

// ==============================
// Memo and lifecycle
// ==============================

type countingCompressor struct {
	compress.S2
	decompressions int32
}

func (c *countingCompressor) Decompress(src []byte) ([]byte, error) {
	atomic.AddInt32(&c.decompressions, 1)
	return c.S2.Decompress(src)
}

func TestMemoSkipsDecompression(t *testing.T) {
	ctx := context.Background()
	cc := &countingCompressor{}
	s, clk, _ := newTestStorage(t, func(o *Options[item]) {
		o.Compressor = cc
		o.MemoBytes = 1 << 20
	})

	if err := s.Set(ctx, "a", item{X: 1}, clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.memo.Wait()
	for i := 0; i < 3; i++ {
		if got, ok, err := s.Get(ctx, "a"); err != nil || !ok || got.X != 1 {
			t.Fatalf("Get: ok=%v err=%v got=%v", ok, err, got)
		}
	}
	if n := atomic.LoadInt32(&cc.decompressions); n != 0 {
		t.Fatalf("decompressions = %d, want 0 with warm memo", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStorage(t, nil)
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
