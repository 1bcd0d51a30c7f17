package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHubServer exposes the hub on a real websocket endpoint running the same
// pump pair the HTTP handler starts.
func newHubServer(t *testing.T, hub *WebSocketHub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.RemoteAddr)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketHub_BroadcastToTopic_DeliversToSubscriber(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	srv := newHubServer(t, hub)
	conn := dialHub(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Subscription{Action: "subscribe", Topics: []string{TopicSquads}}))

	// The read loop applies the subscription asynchronously; keep nudging
	// both topics until the first delivery lands.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				hub.BroadcastToTopic(TopicStats, "stats_refreshed", map[string]int{"players": 600})
				hub.BroadcastToTopic(TopicSquads, "squad_optimized", map[string]float64{"total_points": 512.4})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got WebSocketMessage
	require.NoError(t, conn.ReadJSON(&got))
	close(done)
	wg.Wait()

	// Only the subscribed topic comes through.
	assert.Equal(t, "squad_optimized", got.Type)
	assert.Equal(t, TopicSquads, got.Topic)
	assert.Contains(t, string(got.Data), "total_points")
	assert.False(t, got.Timestamp.IsZero())
}

func TestWebSocketHub_BroadcastDuringSubscriptionChurn(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	srv := newHubServer(t, hub)
	conn := dialHub(t, srv)

	// Broadcast continuously while the client flips its subscriptions, the
	// same overlap a stats sync landing mid-subscribe produces.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				hub.BroadcastToTopic(TopicStats, "stats_refreshed", map[string]int{"players": 600})
			}
		}
	}()

	for i := 0; i < 200; i++ {
		require.NoError(t, conn.WriteJSON(Subscription{Action: "subscribe", Topics: []string{TopicStats}}))
		require.NoError(t, conn.WriteJSON(Subscription{Action: "unsubscribe", Topics: []string{TopicStats}}))
	}

	// A final subscribe, answered by a live broadcast, proves the read loop
	// survived the churn.
	require.NoError(t, conn.WriteJSON(Subscription{Action: "subscribe", Topics: []string{"*"}}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got WebSocketMessage
	require.NoError(t, conn.ReadJSON(&got))
	close(done)
	wg.Wait()

	assert.Equal(t, "stats_refreshed", got.Type)
	assert.Equal(t, TopicStats, got.Topic)
}
