//go:generate go run go.uber.org/mock/mockgen -source=connection.go -destination=../mocks/mock_connection.go -package=mocks

package chat

import (
	"context"
	"errors"
)

// ErrClosed is returned by Connection methods once the connection is closed,
// from either side.
var ErrClosed = errors.New("chat: connection closed")

// Connection is a single full-duplex, message-framed channel.
//
// Receive and Send may be called concurrently with each other but each by a
// single goroutine at a time. Close may be called from anywhere, any number of
// times; after it returns every pending and future Receive or Send returns
// ErrClosed instead of blocking.
type Connection interface {
	Receive(ctx context.Context) (Frame, error)
	Send(ctx context.Context, frame Frame) error
	Close() error
}
