package ingest

import (
	"context"
	"sync"
)

// Queue bridges push-arriving audio slices into a single pulling
// consumer. Pushes after Close are silent no-ops, Close is idempotent
// and always wakes a blocked consumer, and delivery is FIFO in push
// order. Queue assumes one consumer, which the session pump
// guarantees.
type Queue struct {
	mu     sync.Mutex
	buf    [][]byte
	wake   chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push appends a chunk for the consumer. A push to a closed queue is
// dropped without error; arrival after end-of-stream is expected under
// network reordering.
func (q *Queue) Push(chunk []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, chunk)
	q.mu.Unlock()

	q.signal()
}

// Close marks end of stream. Buffered chunks are still delivered; a
// consumer blocked on an empty queue wakes up immediately.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a chunk is available, the queue is drained and
// closed, or ctx is cancelled. ok is false at end of stream.
func (q *Queue) Next(ctx context.Context) (chunk []byte, ok bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			chunk = q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return chunk, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}
