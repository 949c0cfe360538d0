// Package testhelpers provides common utilities and helper functions for testing the relay server.
//
// It starts relay instances on httptest servers, dials their WebSocket endpoints
// with an allowed Origin, and reads frames with deadlines so a missing message
// fails a test instead of hanging it.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/server"
)

// TestOrigin is allowed by every relay created with NewRelay.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every read done through these helpers.
const ReadTimeout = 2 * time.Second

// NewRelay starts a relay with test-friendly timeouts on an httptest server.
// modify may adjust the configuration before the server is built. Both are
// shut down when the test ends.
func NewRelay(t *testing.T, modify ...func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.PingInterval = time.Second
	cfg.PongWait = 2 * time.Second
	cfg.WriteWait = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	for _, m := range modify {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	relay := server.New(*cfg, zerolog.New(zerolog.NewTestWriter(t)))
	ts := httptest.NewServer(relay.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = relay.Shutdown(cfg.ShutdownTimeout)
	})
	return relay, ts
}

// WebSocketURL turns an http:// base URL into a ws:// URL for path.
func WebSocketURL(baseURL, path string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url sending origin as the Origin header.
// An empty origin sends no header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and closes the connection when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// JoinChat connects to a chat endpoint and consumes the greeting every new
// participant receives with the default configuration.
func JoinChat(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn := MustConnect(t, url)
	require.Equal(t, chat.DefaultChatGreeting, MustReadText(t, conn))
	return conn
}

// WaitForMembers blocks until the relay's chat room has n members.
func WaitForMembers(t *testing.T, relay *server.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return relay.Room().Len() == n },
		ReadTimeout, 10*time.Millisecond, "room never reached %d members", n)
}

// SendText writes one text frame.
func SendText(conn *websocket.Conn, text string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReadText reads the next frame, which must be a text frame, within timeout.
func ReadText(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if kind != websocket.TextMessage {
		return "", errors.New("unexpected non-text frame")
	}
	return string(data), nil
}

// MustReadText is ReadText with ReadTimeout that fails the test on error.
func MustReadText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	text, err := ReadText(conn, ReadTimeout)
	require.NoError(t, err)
	return text
}

// ExpectNoMessage fails the test if conn receives a frame within timeout.
// The connection is unusable for reads afterwards.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	text, err := ReadText(conn, timeout)
	if err == nil {
		t.Errorf("Expected no message, got %q", text)
		return
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

// ExpectClosed fails the test unless the server ends conn within ReadTimeout.
// It returns the read error that signalled the closure.
func ExpectClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for time.Now().Before(deadline) {
		_, err := ReadText(conn, time.Until(deadline))
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			break
		}
		return err
	}
	t.Error("Expected the server to close the connection")
	return nil
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}
