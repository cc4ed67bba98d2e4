package ttlkv

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/ttlkv/backend"
)

// Channel names a notification stream.
type Channel string

const (
	ChannelChange Channel = "change"
	ChannelError  Channel = "error"
)

// Event is the payload delivered to listeners. Value pointers are nil when
// the value is absent (e.g. NewValue on remove, OldValue on first write).
type Event[V any] struct {
	Type     Channel
	DB       backend.Type
	Method   string // "init", "get", "set", "remove", "clear", "keys"
	Key      string
	Value    *V
	NewValue *V
	OldValue *V
	Size     int // compressed payload size; set path only
	Expires  time.Time
	Err      error // error channel only
}

// Listener receives events synchronously on the goroutine that caused them.
// Listeners must be cheap and non-blocking; wrap slow ones with
// observers/async.
type Listener[V any] func(Event[V])

type subscriber[V any] struct {
	id uint64
	fn Listener[V]
}

// registry keeps copy-on-write subscriber slices so emit can iterate
// without holding the lock.
type registry[V any] struct {
	mu   sync.Mutex
	next uint64
	subs map[Channel][]subscriber[V]
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{subs: make(map[Channel][]subscriber[V])}
}

func (r *registry[V]) on(ch Channel, fn Listener[V]) (off func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.next++
	id := r.next
	cur := r.subs[ch]
	next := make([]subscriber[V], len(cur), len(cur)+1)
	copy(next, cur)
	r.subs[ch] = append(next, subscriber[V]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.off(ch, id) })
	}
}

func (r *registry[V]) off(ch Channel, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.subs[ch]
	next := make([]subscriber[V], 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	r.subs[ch] = next
}

func (r *registry[V]) emit(ev Event[V]) {
	r.mu.Lock()
	subs := r.subs[ev.Type]
	r.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}

func (r *registry[V]) count(ch Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[ch])
}
