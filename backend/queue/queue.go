// Package queue buffers backend commands issued before the backend is ready.
//
// A Queue starts Uninitialized and holds every submitted command in FIFO
// order. Ready replays the held commands in submission order and then
// executes new commands directly; Fail rejects the held commands, and every
// later one, with the captured error. A command is consumed exactly once.
package queue

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/unkn0wn-root/ttlkv/backend"
)

type State int

const (
	Uninitialized State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Executor runs one command against the underlying store.
type Executor func(ctx context.Context, cmd Command) Result

type Queue struct {
	exec Executor

	mu       sync.Mutex
	state    State
	draining bool
	err      error
	held     deque.Deque[Command]
}

func New(exec Executor) *Queue {
	return &Queue{exec: exec}
}

// Submit hands cmd to the queue and returns a future for its result.
// The channel receives exactly one Result.
//
// Commands held for later replay keep ctx values but not its cancellation:
// once accepted they run even if the submitter stopped waiting.
func (q *Queue) Submit(ctx context.Context, cmd Command) <-chan Result {
	cmd.done = make(chan Result, 1)

	q.mu.Lock()
	switch q.state {
	case Ready:
		q.mu.Unlock()
		cmd.ctx = ctx
		q.run(cmd)
	case Failed:
		err := q.err
		q.mu.Unlock()
		cmd.done <- Result{Err: err}
	default:
		cmd.ctx = context.WithoutCancel(ctx)
		q.held.PushBack(cmd)
		q.mu.Unlock()
	}
	return cmd.done
}

// Do submits cmd and waits for its result or for ctx to be done.
// The returned error is Result.Err, or ctx.Err() if the wait was abandoned.
func (q *Queue) Do(ctx context.Context, cmd Command) (Result, error) {
	ch := q.Submit(ctx, cmd)
	select {
	case res := <-ch:
		return res, res.Err
	case <-ctx.Done():
		select {
		case res := <-ch:
			return res, res.Err
		default:
			return Result{}, ctx.Err()
		}
	}
}

// Ready transitions Uninitialized -> Ready, replaying held commands in FIFO
// order first. Commands submitted during the replay are appended behind the
// held ones, so none overtakes an earlier submission. No-op in other states.
func (q *Queue) Ready() {
	q.mu.Lock()
	if q.state != Uninitialized || q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for {
		if q.held.Len() == 0 {
			q.state = Ready
			q.draining = false
			q.mu.Unlock()
			return
		}
		cmd := q.held.PopFront()
		q.mu.Unlock()
		q.run(cmd)
		q.mu.Lock()
	}
}

// Fail transitions Uninitialized -> Failed and rejects every held command,
// in FIFO order, with err. Later submissions are rejected with the same err.
// Returns false if the queue already left Uninitialized.
func (q *Queue) Fail(err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != Uninitialized || q.draining {
		return false
	}
	q.state = Failed
	q.err = err
	for q.held.Len() > 0 {
		cmd := q.held.PopFront()
		cmd.done <- Result{Err: err}
	}
	return true
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Err returns the captured initialization error, if any.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Held reports how many commands are waiting for readiness.
func (q *Queue) Held() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.held.Len()
}

func (q *Queue) run(cmd Command) {
	cmd.done <- q.exec(cmd.ctx, cmd)
}

// Result is the outcome of one command. Only the fields relevant to the
// command's Op are set.
type Result struct {
	Entry   backend.Entry
	Found   bool
	Keys    []string
	Removed int
	Err     error
}
