// Package async wraps a ttlkv.Listener so events are delivered on worker
// goroutines instead of the goroutine performing the storage operation.
//
//	raw := slogobs.New[User](slog.Default(), slogobs.Options{ChangeEvery: 10})
//	l := asyncobs.New(raw.Listen, 1, 1000) // 1 worker; queue 1000 events
//	defer l.Close()
//
//	st, _ := ttlkv.New[User](ttlkv.Options[User]{
//	    OnChange: l.Listen,
//	    OnError:  l.Listen,
//	})
package async

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/ttlkv"
)

// Listener queues events for inner. When the queue is full the event is
// dropped and counted; Listen never blocks.
type Listener[V any] struct {
	inner   ttlkv.Listener[V]
	q       chan ttlkv.Event[V]
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against send on closed channel
	closed  bool
	dropped atomic.Uint64
}

func New[V any](inner ttlkv.Listener[V], workers, qlen int) *Listener[V] {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	l := &Listener[V]{inner: inner, q: make(chan ttlkv.Event[V], qlen)}
	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer l.wg.Done()
			for ev := range l.q {
				l.inner(ev)
			}
		}()
	}
	return l
}

// Listen matches ttlkv.Listener and can be passed to Storage.On.
func (l *Listener[V]) Listen(ev ttlkv.Event[V]) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.q <- ev:
	default:
		l.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (l *Listener[V]) Dropped() uint64 { return l.dropped.Load() }

// Close stops accepting events and waits for queued ones to be delivered.
func (l *Listener[V]) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.q)
		l.mu.Unlock()
		l.wg.Wait()
	})
}
