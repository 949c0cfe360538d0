package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/chat"
)

// fakeConn is an in-memory chat.Connection. The test plays the remote peer:
// push feeds Receive, pop reads what the server sent.
type fakeConn struct {
	in     chan chat.Frame
	out    chan chat.Frame
	closed chan struct{}
	once   sync.Once

	// stalled makes Send block until the connection closes, like a peer that
	// stopped reading.
	stalled bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan chat.Frame, 64),
		out:    make(chan chat.Frame, 512),
		closed: make(chan struct{}),
	}
}

func newStalledConn() *fakeConn {
	c := newFakeConn()
	c.stalled = true
	return c
}

func (c *fakeConn) Receive(ctx context.Context) (chat.Frame, error) {
	select {
	case <-c.closed:
		return chat.Frame{}, chat.ErrClosed
	default:
	}

	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return chat.Frame{}, chat.ErrClosed
	case <-ctx.Done():
		return chat.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, f chat.Frame) error {
	select {
	case <-c.closed:
		return chat.ErrClosed
	default:
	}

	if c.stalled {
		select {
		case <-c.closed:
			return chat.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return chat.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push simulates the peer sending a text frame.
func (c *fakeConn) push(t *testing.T, text string) {
	t.Helper()
	c.pushFrame(t, chat.Text(text))
}

func (c *fakeConn) pushFrame(t *testing.T, f chat.Frame) {
	t.Helper()
	select {
	case c.in <- f:
	case <-time.After(time.Second):
		t.Fatalf("peer could not send %q", f.Text)
	}
}

// pop waits for the next frame the server sent to this peer.
func (c *fakeConn) pop(t *testing.T, timeout time.Duration) chat.Frame {
	t.Helper()
	select {
	case f := <-c.out:
		return f
	case <-time.After(timeout):
		t.Fatalf("no frame received within %s", timeout)
		return chat.Frame{}
	}
}

// expectSilence asserts nothing arrives within d.
func (c *fakeConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-c.out:
		t.Fatalf("unexpected frame %q", f.Text)
	case <-time.After(d):
	}
}

func waitClosed(t *testing.T, c *fakeConn) {
	t.Helper()
	require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond, "connection was not closed")
}
