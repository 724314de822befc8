package jobs

import "sync"

// Sink receives messages from a worker. Send must never block.
type Sink[T any] interface {
	Send(msg T)
}

// Mailbox is an unbounded FIFO between one worker and one polling consumer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
}

// NewMailbox creates an empty open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Send appends msg. Messages sent after Close are dropped.
func (m *Mailbox[T]) Send(msg T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.items = append(m.items, msg)
}

// Drain returns every queued message in send order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil
	}
	out := m.items
	m.items = nil
	return out
}

// Close discards queued messages and drops later sends.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
}
