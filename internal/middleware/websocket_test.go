package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/subscribe", func(c *gin.Context) {
		hub.HandleSubscribe(c, c.Query("room"))
	})
	r.GET("/reject", func(c *gin.Context) {
		hub.RejectUpgrade(c, "Invalid token")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func waitForCount(t *testing.T, hub *Hub, key string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount(key) == n
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcastReachesOnlyItsGroup(t *testing.T) {
	hub := NewHub(nil)
	srv := newHubServer(t, hub)

	global := dialHub(t, srv, "/subscribe")
	room204 := dialHub(t, srv, "/subscribe?room=204")
	waitForCount(t, hub, "", 1)
	waitForCount(t, hub, "204", 1)

	hub.Broadcast("204", map[string]any{"r": 255, "g": 0, "b": 0})
	got := readJSON(t, room204)
	assert.Equal(t, float64(255), got["r"])

	// The global group saw nothing from the room broadcast.
	require.NoError(t, global.SetReadDeadline(time.Now().Add(50 * time.Millisecond)))
	_, _, err := global.ReadMessage()
	assert.Error(t, err, "global subscriber must not receive room-scoped frames")
}

func TestBroadcastFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	srv := newHubServer(t, hub)

	a := dialHub(t, srv, "/subscribe")
	b := dialHub(t, srv, "/subscribe")
	waitForCount(t, hub, "", 2)

	hub.Broadcast("", map[string]any{"isBlood": true, "room": "204"})
	for _, conn := range []*websocket.Conn{a, b} {
		got := readJSON(t, conn)
		assert.Equal(t, true, got["isBlood"])
		assert.Equal(t, "204", got["room"])
	}
}

func TestDisconnectedSubscriberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	srv := newHubServer(t, hub)

	conn := dialHub(t, srv, "/subscribe?room=310")
	waitForCount(t, hub, "310", 1)

	conn.Close()
	waitForCount(t, hub, "310", 0)

	// Broadcasting into the now-empty group is harmless.
	hub.Broadcast("310", map[string]any{"r": 1})
}

func TestRejectUpgradeClosesWithPolicyViolation(t *testing.T) {
	hub := NewHub(nil)
	srv := newHubServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/reject"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Invalid token", closeErr.Text)

	// Nothing got registered along the way.
	assert.Equal(t, 0, hub.ClientCount(""))
}
