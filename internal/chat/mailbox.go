package chat

import (
	"context"
	"sync"
)

// mailbox is a bounded FIFO of outbound frames with many producers
// (broadcasters) and one consumer (the owning participant's send loop).
// offer never blocks; the mutex only orders offer against close so a send on a
// closed channel cannot happen.
type mailbox struct {
	mu     sync.Mutex
	ch     chan Frame
	closed bool
}

func newMailbox(size int) *mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &mailbox{ch: make(chan Frame, size)}
}

// offer enqueues f or reports why it could not. A full mailbox drops f.
func (m *mailbox) offer(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMailboxClosed
	}

	select {
	case m.ch <- f:
		return nil
	default:
		return ErrMailboxFull
	}
}

// next blocks until a frame is available, the mailbox is closed and drained,
// or ctx is done. ok is false in the latter two cases.
func (m *mailbox) next(ctx context.Context) (Frame, bool) {
	select {
	case f, ok := <-m.ch:
		return f, ok
	case <-ctx.Done():
		return Frame{}, false
	}
}

// close is idempotent. Frames already queued stay readable through next.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

func (m *mailbox) len() int {
	return len(m.ch)
}

func (m *mailbox) capacity() int {
	return cap(m.ch)
}
