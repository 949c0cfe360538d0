// Package server exposes HTTP handlers, including WebSocket upgrades for the
// echo and chat endpoints, the root greeting, and the built-in test page.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/chat"
)

const methodNotAllowedMessage = "Method not allowed. WebSocket endpoint only accepts GET requests."

// RootHandler answers GET / with the configured plain-text greeting.
func (s *Server) RootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprint(w, s.cfg.RootGreeting); err != nil {
		s.log.Warn().Err(err).Msg("Error writing root response")
	}
}

// EchoHandler upgrades the request and replies to every text message with
// "You said: <message>" after an initial greeting.
func (s *Server) EchoHandler(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}

	ctx, done := s.sessionContext(r.Context())
	defer done()

	s.metrics.echoSessions.Inc()
	conn.log.Debug().Msg("Echo session started")
	if err := s.echo.Serve(ctx, conn); err != nil {
		conn.log.Warn().Err(err).Msg("Echo session ended with error")
		return
	}
	conn.log.Debug().Msg("Echo session ended")
}

// ChatHandler upgrades the request and makes the connection a member of the
// shared room until it disconnects.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}

	ctx, done := s.sessionContext(r.Context())
	defer done()

	err := s.room.Serve(ctx, conn)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrRoomFull):
		s.metrics.joinRejections.WithLabelValues("full").Inc()
		conn.log.Warn().Msg("Chat room full; refusing participant")
		_ = conn.CloseWithStatus(websocket.CloseTryAgainLater, "room full")
	case errors.Is(err, chat.ErrRoomClosed):
		s.metrics.joinRejections.WithLabelValues("closed").Inc()
		_ = conn.CloseWithStatus(websocket.CloseGoingAway, "server shutting down")
	default:
		s.metrics.joinRejections.WithLabelValues("error").Inc()
		conn.log.Warn().Err(err).Msg("Chat join failed")
		_ = conn.Close()
	}
}

// upgrade validates the method and performs the WebSocket handshake. On
// failure the response has already been written.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*wsConn, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return nil, false
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return nil, false
	}

	return newWSConn(ws, r.RemoteAddr, s.cfg, s.log), true
}

// TestPageHandler serves an HTML page for trying both WebSocket endpoints
// from a browser.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn().Err(err).Msg("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Relay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        .sent { color: blue; }
        .received { color: green; }
        .info { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Relay WebSocket Test</h1>
    <select id="endpoint">
        <option value="/ws/chat">chat</option>
        <option value="/ws/echo">echo</option>
    </select>
    <button id="connectButton" onclick="toggleConnection()">Connect</button>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        const messages = document.getElementById('messages');
        const input = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');

        function addMessage(text, kind) {
            const el = document.createElement('div');
            el.className = kind;
            el.textContent = text;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function setConnected(connected) {
            input.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const path = document.getElementById('endpoint').value;
            ws = new WebSocket(scheme + location.host + path);
            ws.onopen = () => { addMessage('Connected to ' + path, 'info'); setConnected(true); };
            ws.onmessage = (event) => addMessage(event.data, 'received');
            ws.onclose = () => { addMessage('Connection closed', 'info'); setConnected(false); ws = null; };
        }

        function sendMessage() {
            const text = input.value;
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                addMessage(text, 'sent');
                input.value = '';
            }
        }

        input.addEventListener('keypress', (e) => { if (e.key === 'Enter') sendMessage(); });
    </script>
</body>
</html>`
