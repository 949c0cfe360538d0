// Package server adapts gorilla WebSocket connections to chat.Connection,
// handling read limits, deadlines, keepalive pings and the close handshake.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
)

// wsConn implements chat.Connection on top of a gorilla connection. Receive
// and Send are each used by a single goroutine; Close and the keepalive pinger
// only use the methods gorilla allows concurrently.
type wsConn struct {
	conn           *websocket.Conn
	addr           string
	log            zerolog.Logger
	maxMessageSize int64
	writeWait      time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, addr string, cfg Config, logger zerolog.Logger) *wsConn {
	c := &wsConn{
		conn:           conn,
		addr:           addr,
		log:            logger.With().Str("remote", addr).Logger(),
		maxMessageSize: cfg.MaxMessageSize,
		writeWait:      cfg.WriteWait,
		closed:         make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	c.setupReadConnection(cfg.PongWait)
	go c.keepalive(cfg.PingInterval)
	return c
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *wsConn) setupReadConnection(pongWait time.Duration) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Receive reads the next data frame. Cancelling ctx closes the connection.
func (c *wsConn) Receive(ctx context.Context) (chat.Frame, error) {
	if c.isClosed() {
		return chat.Frame{}, chat.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return chat.Frame{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return c.handleReadError(err)
	}

	if messageType != websocket.TextMessage {
		return chat.Frame{Kind: chat.FrameOther}, nil
	}
	if !utf8.Valid(data) {
		c.log.Debug().Msg("Ignoring text frame with invalid UTF-8")
		return chat.Frame{Kind: chat.FrameOther}, nil
	}
	return chat.Text(string(data)), nil
}

// handleReadError maps a read failure to the chat vocabulary: a close
// handshake becomes a close frame, expected disconnects become ErrClosed and
// anything else is returned as is.
func (c *wsConn) handleReadError(err error) (chat.Frame, error) {
	if c.isClosed() {
		return chat.Frame{}, chat.ErrClosed
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("Message exceeded maximum size")
		return chat.Frame{}, err
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.log.Debug().Err(err).Msg("Client disconnected")
		return chat.CloseFrame(), nil
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) ||
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure) {
		c.log.Debug().Err(err).Msg("Client connection closed")
		return chat.Frame{}, fmt.Errorf("%w: %v", chat.ErrClosed, err)
	}

	if websocket.IsUnexpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("Unexpected WebSocket close")
		return chat.Frame{}, fmt.Errorf("%w: %v", chat.ErrClosed, err)
	}

	c.log.Warn().Err(err).Msg("WebSocket read error")
	return chat.Frame{}, err
}

// Send writes one frame under the configured write deadline.
func (c *wsConn) Send(ctx context.Context, frame chat.Frame) error {
	if c.isClosed() {
		return chat.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return c.handleWriteError(err)
	}

	var err error
	switch frame.Kind {
	case chat.FrameText:
		err = c.conn.WriteMessage(websocket.TextMessage, []byte(frame.Text))
	case chat.FrameClose:
		return c.Close()
	default:
		return nil
	}
	if err != nil {
		return c.handleWriteError(err)
	}
	return nil
}

func (c *wsConn) handleWriteError(err error) error {
	if c.isClosed() || isExpectedCloseError(err) {
		return fmt.Errorf("%w: %v", chat.ErrClosed, err)
	}
	c.log.Warn().Err(err).Msg("Error writing message")
	return err
}

// keepalive pings the peer until the connection closes. A failed ping ends the
// connection.
func (c *wsConn) keepalive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			if err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("Error writing ping message")
				}
				_ = c.Close()
				return
			}
		}
	}
}

// Close sends a normal closure and closes the socket.
func (c *wsConn) Close() error {
	return c.CloseWithStatus(websocket.CloseNormalClosure, "")
}

// CloseWithStatus closes the connection with an explicit close code. Only the
// first close has an effect.
func (c *wsConn) CloseWithStatus(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		msg := websocket.FormatCloseMessage(code, reason)
		werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		if !isExpectedCloseError(werr) {
			c.log.Debug().Err(werr).Msg("Error writing close message")
		}
		if cerr := c.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

// isExpectedCloseError reports errors that only say the connection is already
// gone.
func isExpectedCloseError(err error) bool {
	return err == nil ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
