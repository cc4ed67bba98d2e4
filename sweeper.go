package ttlkv

import (
	"context"
	"sync"
	"time"
)

// sweeper runs the backend sweep on a fixed interval. The next run is armed
// only after the previous one returns, and runOnce holds mu for the whole
// sweep, so scheduled and manual sweeps never overlap.
type sweeper struct {
	interval time.Duration
	sweep    func(context.Context) (int, error)
	log      Logger

	mu sync.Mutex // held while a sweep is in flight

	stateMu sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newSweeper(interval time.Duration, sweep func(context.Context) (int, error), log Logger) *sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &sweeper{
		interval: interval,
		sweep:    sweep,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// start launches the loop once. It is a no-op after stop.
func (w *sweeper) start() {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.loop()
}

func (w *sweeper) loop() {
	defer w.wg.Done()
	t := time.NewTimer(w.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_, _ = w.runOnce(w.ctx)
			t.Reset(w.interval)
		case <-w.ctx.Done():
			return
		}
	}
}

// runOnce performs one sweep. Errors are logged, never emitted as events.
func (w *sweeper) runOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	started := time.Now()
	removed, err := w.sweep(ctx)
	if err != nil {
		w.log.Warn("sweep finished with errors", Fields{"removed": removed, "err": err})
		return removed, err
	}
	if removed > 0 {
		w.log.Debug("sweep removed expired entries", Fields{"removed": removed, "took": time.Since(started)})
	}
	return removed, nil
}

// stop cancels an in-flight sweep and waits for the loop to exit.
func (w *sweeper) stop() {
	w.stateMu.Lock()
	if w.stopped {
		w.stateMu.Unlock()
		return
	}
	w.stopped = true
	w.cancel()
	w.stateMu.Unlock()
	w.wg.Wait()
}
