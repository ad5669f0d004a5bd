package queue

import (
	"sync"
	"testing"

	"github.com/adamavenir/chorus/internal/message"
)

func TestQueueOrdering(t *testing.T) {
	q := New()
	q.Enqueue(message.Message{Channel: "a", Content: "1"})
	q.Enqueue(message.Message{Channel: "b", Content: "2"})
	q.Enqueue(message.Message{Channel: "a", Content: "3"})

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("Drain returned %d messages, want 3", len(drained))
	}
	for i, want := range []string{"1", "2", "3"} {
		if drained[i].Content != want {
			t.Errorf("drained[%d].Content = %q, want %q", i, drained[i].Content, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after drain = %d, want 0", q.Len())
	}
}

func TestQueueDrainEmptyReturnsNil(t *testing.T) {
	q := New()
	if drained := q.Drain(); drained != nil {
		t.Errorf("Drain on empty queue = %v, want nil", drained)
	}
}

func TestQueueRequeuePrependsAheadOfNewArrivals(t *testing.T) {
	q := New()
	batch := []message.Message{
		{Channel: "a", Content: "1"},
		{Channel: "a", Content: "2"},
	}
	q.Requeue(batch)
	q.Enqueue(message.Message{Channel: "b", Content: "3"})

	drained := q.Drain()
	want := []string{"1", "2", "3"}
	if len(drained) != len(want) {
		t.Fatalf("Drain returned %d messages, want %d", len(drained), len(want))
	}
	for i, w := range want {
		if drained[i].Content != w {
			t.Errorf("drained[%d].Content = %q, want %q", i, drained[i].Content, w)
		}
	}
}

func TestQueueRequeueOfEmptyBatchIsNoop(t *testing.T) {
	q := New()
	q.Enqueue(message.Message{Content: "1"})
	q.Requeue(nil)
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(message.Message{Content: "x"})
		}()
	}
	wg.Wait()
	if q.Len() != 100 {
		t.Fatalf("Len = %d, want 100", q.Len())
	}
}
