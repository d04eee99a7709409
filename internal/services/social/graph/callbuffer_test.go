package graph

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

type recordedCalls struct {
	mu      sync.Mutex
	batches [][]string
	fail    int
	gate    chan struct{}
}

func (r *recordedCalls) call(ctx context.Context, ids []string) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ids)
	if r.fail > 0 {
		r.fail--
		return errUpstream
	}
	return nil
}

func (r *recordedCalls) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

func waitForBatches(t *testing.T, r *recordedCalls, n int) [][]string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if batches := r.snapshot(); len(batches) >= n {
			return batches
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d batches, got %v", n, r.snapshot())
	return nil
}

func TestCallBufferCoalescesWithinWindow(t *testing.T) {
	rec := &recordedCalls{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newCallBuffer(ctx, 20*time.Millisecond, time.Millisecond, 0, 100, rec.call)
	defer b.close()

	b.add("a", "b")
	b.add("b", "c")
	batches := waitForBatches(t, rec, 1)
	if !slices.Equal(batches[0], []string{"a", "b", "c"}) {
		t.Fatalf("batch = %v, want [a b c]", batches[0])
	}
}

func TestCallBufferOneCallInFlight(t *testing.T) {
	rec := &recordedCalls{gate: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newCallBuffer(ctx, 0, time.Millisecond, 0, 2, rec.call)
	defer b.close()

	b.add("a", "b", "c")
	time.Sleep(10 * time.Millisecond)
	b.add("d")
	if !b.busy() {
		t.Fatal("expected buffer to be busy")
	}
	rec.gate <- struct{}{}
	rec.gate <- struct{}{}
	batches := waitForBatches(t, rec, 2)
	if !slices.Equal(batches[0], []string{"a", "b"}) || !slices.Equal(batches[1], []string{"c", "d"}) {
		t.Fatalf("batches = %v", batches)
	}
}

func TestCallBufferRequeuesFailedBatch(t *testing.T) {
	rec := &recordedCalls{fail: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newCallBuffer(ctx, 0, 5*time.Millisecond, 0, 100, rec.call)
	defer b.close()

	b.add("a")
	batches := waitForBatches(t, rec, 2)
	if !slices.Equal(batches[1], []string{"a"}) {
		t.Fatalf("retry batch = %v, want [a]", batches[1])
	}
}

func TestCallBufferRemoveDropsPending(t *testing.T) {
	rec := &recordedCalls{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newCallBuffer(ctx, 20*time.Millisecond, time.Millisecond, 0, 100, rec.call)
	defer b.close()

	b.add("a", "b")
	b.remove("a")
	batches := waitForBatches(t, rec, 1)
	if !slices.Equal(batches[0], []string{"b"}) {
		t.Fatalf("batch = %v, want [b]", batches[0])
	}
}
