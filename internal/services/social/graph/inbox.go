package graph

import "sync"

// inbox is the graph's ingest queue. Any goroutine may push; only DoWork
// drains. Push never blocks on the consumer, and order is preserved per
// producer only.
type inbox struct {
	mu     sync.Mutex
	items  []message
	closed bool
}

// push appends messages and reports whether they were accepted.
func (q *inbox) push(msgs ...message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, msgs...)
	return true
}

// drain removes up to max messages; max <= 0 drains everything.
func (q *inbox) drain(max int) []message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	out := make([]message, n)
	copy(out, q.items[:n])
	remaining := copy(q.items, q.items[n:])
	clear(q.items[remaining:])
	q.items = q.items[:remaining]
	return out
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further pushes and returns what was still queued.
func (q *inbox) close() []message {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	leftover := q.items
	q.items = nil
	return leftover
}
