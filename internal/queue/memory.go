package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue used by tests and local development.
// Receive returns a snapshot of the pending messages without removing them,
// mirroring visibility-timeout transports: a message stays visible until it
// is explicitly deleted.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Send appends a message to the queue.
func (q *MemoryQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	buf := make([]byte, len(body))
	copy(buf, body)
	q.messages = append(q.messages, Message{
		ID:   uuid.New().String(),
		Body: buf,
	})
	return nil
}

// Receive returns a copy of every pending message.
func (q *MemoryQueue) Receive(_ context.Context) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out, nil
}

// Delete removes the message with the given ID. Deleting a message that is
// no longer present is a no-op, matching at-least-once transport semantics.
func (q *MemoryQueue) Delete(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	for i := range q.messages {
		if q.messages[i].ID == msg.ID {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close marks the queue closed; subsequent operations fail with ErrClosed.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
