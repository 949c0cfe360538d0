package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/test/testhelpers"
)

// TestGracefulShutdownWithClients verifies that active chat and echo
// connections are closed during graceful shutdown.
func TestGracefulShutdownWithClients(t *testing.T) {
	relay, ts := testhelpers.NewRelay(t)

	chatters := connectChatClients(t, testhelpers.WebSocketURL(ts.URL, "/ws/chat"), 5)
	testhelpers.WaitForMembers(t, relay, 5)

	echo := testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts.URL, "/ws/echo"))
	testhelpers.MustReadText(t, echo)

	start := time.Now()
	require.NoError(t, relay.Shutdown(2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, relay.Room().Len())

	for _, conn := range append(chatters, echo) {
		err := testhelpers.ExpectClosed(t, conn)
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	}
}

func TestShutdownWithActiveMessages(t *testing.T) {
	relay, ts := testhelpers.NewRelay(t)
	conns := connectChatClients(t, testhelpers.WebSocketURL(ts.URL, "/ws/chat"), 2)
	testhelpers.WaitForMembers(t, relay, 2)

	stop := make(chan struct{})
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := testhelpers.SendText(conns[0], "busy"); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	assert.Equal(t, "busy", testhelpers.MustReadText(t, conns[1]))
	require.NoError(t, relay.Shutdown(2*time.Second))
	close(stop)
	<-sent

	testhelpers.ExpectClosed(t, conns[1])
	assert.Equal(t, 0, relay.Room().Len())
}

func TestNoClientsShutdown(t *testing.T) {
	relay, _ := testhelpers.NewRelay(t)
	assert.NoError(t, relay.Shutdown(time.Second))
}

func TestJoinAfterShutdownIsRefused(t *testing.T) {
	relay, ts := testhelpers.NewRelay(t)
	require.NoError(t, relay.Shutdown(time.Second))

	conn := testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts.URL, "/ws/chat"))
	err := testhelpers.ExpectClosed(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, relay.Room().Len())
}
