package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

func newTestServer(t *testing.T, modify ...func(*Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := defaultConfig()
	cfg.PingInterval = time.Second
	cfg.PongWait = 2 * time.Second
	cfg.WriteWait = time.Second
	for _, m := range modify {
		m(&cfg)
	}

	srv := New(cfg, zerolog.New(zerolog.NewTestWriter(t)))
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(time.Second)
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+path, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// joinChat dials the chat endpoint and consumes the join greeting.
func joinChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := dial(t, ts, "/ws/chat")
	require.Equal(t, "Hi from server", readText(t, conn))
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestRootHandler(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "root", string(body))
}

func TestUnknownPathIsNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketEndpointsRejectNonGet(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/ws/echo", "/ws/chat"} {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			t.Run(method+" "+path, func(t *testing.T) {
				rr := httptest.NewRecorder()
				srv.SetupRoutes().ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))

				assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
				assert.Contains(t, rr.Body.String(), methodNotAllowedMessage)
			})
		}
	}
}

func TestWebSocketEndpointRequiresUpgrade(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws/echo")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEchoHandler(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "/ws/echo")

	assert.Equal(t, "Hi from server", readText(t, conn))

	for _, msg := range []string{"111", "222", ""} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		assert.Equal(t, "You said: "+msg, readText(t, conn))
	}
}

func TestEchoHandlerIgnoresBinaryFrames(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "/ws/echo")
	readText(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("after")))
	assert.Equal(t, "You said: after", readText(t, conn))
}

func TestChatHandlerRelaysToOthers(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := joinChat(t, ts)
	bob := joinChat(t, ts)
	require.Eventually(t, func() bool { return srv.Room().Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("hello bob")))
	assert.Equal(t, "hello bob", readText(t, bob))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err, "sender must not receive its own message")
}

func TestChatHandlerLeaveOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts, "/ws/chat")
	require.Eventually(t, func() bool { return srv.Room().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return srv.Room().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatHandlerRoomFull(t *testing.T) {
	srv, ts := newTestServer(t, func(c *Config) { c.Chat.MaxParticipants = 1 })
	dial(t, ts, "/ws/chat")
	require.Eventually(t, func() bool { return srv.Room().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, ts, "/ws/chat")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
	assert.Equal(t, 1, srv.Room().Len())
}

func TestChatHandlerAfterShutdown(t *testing.T) {
	srv, ts := newTestServer(t)
	require.NoError(t, srv.Shutdown(time.Second))

	conn := dial(t, ts, "/ws/chat")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestDisallowedOriginIsRejected(t *testing.T) {
	_, ts := newTestServer(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/chat", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := joinChat(t, ts)
	bob := joinChat(t, ts)
	require.Eventually(t, func() bool { return srv.Room().Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "ping", readText(t, bob))

	assert.Eventually(t, func() bool {
		body := scrape(t, ts.URL+"/metrics")
		return strings.Contains(body, "relay_chat_participants 2") &&
			strings.Contains(body, "relay_chat_joins_total 2") &&
			strings.Contains(body, "relay_chat_broadcasts_total 1") &&
			strings.Contains(body, "go_goroutines")
	}, 2*time.Second, 20*time.Millisecond)
}

// scrape returns the body of a metrics page, or "" when the request fails.
func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return ""
	}
	return string(body)
}

func TestTestPageHandler(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/test")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "/ws/chat")
	assert.Contains(t, string(body), "/ws/echo")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/", http.NoBody)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(rr, req)

	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}
