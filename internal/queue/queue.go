// Package queue implements the Message Queue: an ordered in-memory
// buffer of undelivered Messages, shared between the Input Channel
// Manager (producer) and the Injection Controller (consumer) under a
// single mutex.
package queue

import (
	"sync"

	"github.com/adamavenir/chorus/internal/message"
)

// Queue is a mutex-guarded FIFO of Messages. The zero value is not
// usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	messages []message.Message
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends msg to the tail, preserving arrival order.
func (q *Queue) Enqueue(msg message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
}

// Len reports the number of undelivered Messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Requeue prepends a previously drained batch back onto the queue, ahead
// of anything that arrived while the batch was in flight. Used when an
// injection attempt fails after the batch was already drained, so a
// pane write failure never silently drops queued input.
func (q *Queue) Requeue(batch []message.Message) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(batch, q.messages...)
}

// Drain atomically removes and returns every Message currently queued,
// in arrival order. Returns nil if the queue is empty — callers must
// not inject an empty batch. The queue must not be drained again until
// the caller has finished with (or abandoned) this batch, per the
// Injection Controller's atomicity rule; callers enforce that by
// serializing their own drain+inject sequence, not by holding this
// queue's lock across the injection subprocess call.
func (q *Queue) Drain() []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil
	}
	drained := q.messages
	q.messages = nil
	return drained
}
