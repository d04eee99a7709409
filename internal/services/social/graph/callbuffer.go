package graph

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callBuffer coalesces ids requested in quick succession into batched
// calls. At most one call is in flight; ids added meanwhile wait for the
// next batch. Failed batches are requeued ahead of newer ids and retried
// after the retry delay.
type callBuffer struct {
	window   time.Duration
	retry    time.Duration
	maxBatch int
	limiter  *rate.Limiter
	call     func(context.Context, []string) error
	ctx      context.Context

	mu      sync.Mutex
	pending []string
	queued  map[string]struct{}
	timer   *time.Timer
	running bool
	closed  bool
}

func newCallBuffer(
	ctx context.Context,
	window, retry, throttle time.Duration,
	maxBatch int,
	call func(context.Context, []string) error,
) *callBuffer {
	limit := rate.Inf
	if throttle > 0 {
		limit = rate.Every(throttle)
	}
	return &callBuffer{
		window:   window,
		retry:    retry,
		maxBatch: maxBatch,
		limiter:  rate.NewLimiter(limit, 1),
		call:     call,
		ctx:      ctx,
		queued:   make(map[string]struct{}),
	}
}

// add queues ids and arms the buffer when it is idle.
func (b *callBuffer) add(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, id := range ids {
		if _, ok := b.queued[id]; ok {
			continue
		}
		b.queued[id] = struct{}{}
		b.pending = append(b.pending, id)
	}
	if len(b.pending) > 0 && !b.running {
		b.scheduleLocked(b.window)
	}
}

// remove drops ids that have not been sent yet.
func (b *callBuffer) remove(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := b.queued[id]; ok {
			drop[id] = struct{}{}
			delete(b.queued, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	b.pending = slices.DeleteFunc(b.pending, func(id string) bool {
		_, ok := drop[id]
		return ok
	})
}

// busy reports whether ids are waiting or a call is in flight.
func (b *callBuffer) busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running || len(b.pending) > 0
}

// close stops the timer; an in-flight call ends with the buffer context.
func (b *callBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.pending = nil
	clear(b.queued)
}

func (b *callBuffer) scheduleLocked(delay time.Duration) {
	b.running = true
	b.timer = time.AfterFunc(delay, b.fire)
}

func (b *callBuffer) fire() {
	b.mu.Lock()
	if b.closed || len(b.pending) == 0 {
		b.running = false
		b.mu.Unlock()
		return
	}
	n := min(len(b.pending), b.maxBatch)
	batch := slices.Clone(b.pending[:n])
	b.pending = slices.Delete(b.pending, 0, n)
	for _, id := range batch {
		delete(b.queued, id)
	}
	b.mu.Unlock()

	err := b.limiter.Wait(b.ctx)
	if err == nil {
		err = b.call(b.ctx, batch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	if b.closed || b.ctx.Err() != nil {
		return
	}
	delay := b.window
	if err != nil {
		requeue := make([]string, 0, len(batch))
		for _, id := range batch {
			if _, ok := b.queued[id]; ok {
				continue
			}
			b.queued[id] = struct{}{}
			requeue = append(requeue, id)
		}
		b.pending = append(requeue, b.pending...)
		delay = b.retry
	}
	if len(b.pending) > 0 {
		b.scheduleLocked(delay)
	}
}
