package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardwatch/internal/api"
	"wardwatch/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newFrameServer serves one websocket connection at a time, writing every
// payload received on outbound. Closing outbound closes the connection
// with a normal closure.
func newFrameServer(t *testing.T, outbound <-chan []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for msg := range outbound {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newIdleServer parks websocket connections open until the client leaves.
func newIdleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialerFor(srv *httptest.Server) *api.Client {
	return api.NewClient(api.Options{BaseURL: srv.URL})
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestSubscriptionConnectsAndDisconnects(t *testing.T) {
	outbound := make(chan []byte)
	srv := newFrameServer(t, outbound)

	var closed bool
	done := make(chan struct{})
	sub := Subscribe(context.Background(), dialerFor(srv), "/liquid/colour/subscribe?token=abc", Options{
		OnClose: func() { closed = true; close(done) },
	})

	assert.Eventually(t, func() bool {
		return sub.Status() == StatusConnected
	}, time.Second, 5*time.Millisecond)

	close(outbound) // server hangs up

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscription never reached disconnected")
	}
	assert.True(t, closed)
	assert.Equal(t, StatusDisconnected, sub.Status())

	// No self-heal: the status stays disconnected.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusDisconnected, sub.Status())
}

func TestSubscriptionDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	sub := Subscribe(context.Background(), dialerFor(srv), "/liquid/colour/subscribe?token=abc", Options{})

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("dial failure not surfaced")
	}
	assert.Equal(t, StatusDisconnected, sub.Status())
	_, ok := sub.LastSample()
	assert.False(t, ok)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	outbound := make(chan []byte)
	srv := newFrameServer(t, outbound)

	samples := make(chan models.SensorSample, 16)
	sub := Subscribe(context.Background(), dialerFor(srv), "/liquid/colour/subscribe?token=abc", Options{
		OnSample: func(s models.SensorSample) { samples <- s },
	})
	defer sub.Close()

	good1 := models.SensorSample{R: 10, G: 20, B: 30}
	good2 := models.SensorSample{R: 255, G: 0, B: 0, IsBlood: true}

	outbound <- mustJSON(t, good1)
	require.Equal(t, good1, <-samples)

	outbound <- []byte("{{{ not json")
	outbound <- mustJSON(t, good2)
	require.Equal(t, good2, <-samples)

	// The malformed frame produced no sample and did not clobber state.
	last, ok := sub.LastSample()
	require.True(t, ok)
	assert.Equal(t, good2, last)
	assert.Empty(t, samples)
	close(outbound)
}

func TestLastSampleSurvivesTrailingGarbage(t *testing.T) {
	outbound := make(chan []byte)
	srv := newFrameServer(t, outbound)

	samples := make(chan models.SensorSample, 16)
	sub := Subscribe(context.Background(), dialerFor(srv), "/p", Options{
		OnSample: func(s models.SensorSample) { samples <- s },
	})
	defer sub.Close()

	good := models.SensorSample{R: 1, G: 2, B: 3}
	outbound <- mustJSON(t, good)
	<-samples
	outbound <- []byte("garbage")

	// Give the read loop a beat to (not) process the bad frame.
	time.Sleep(20 * time.Millisecond)
	last, ok := sub.LastSample()
	require.True(t, ok)
	assert.Equal(t, good, last)
	close(outbound)
}

func TestFramesArriveInOrder(t *testing.T) {
	outbound := make(chan []byte)
	srv := newFrameServer(t, outbound)

	samples := make(chan models.SensorSample, 64)
	sub := Subscribe(context.Background(), dialerFor(srv), "/p", Options{
		OnSample: func(s models.SensorSample) { samples <- s },
	})
	defer sub.Close()

	for i := 0; i < 20; i++ {
		outbound <- mustJSON(t, models.SensorSample{R: i})
	}
	for i := 0; i < 20; i++ {
		got := <-samples
		assert.Equal(t, i, got.R, "frame %d out of order", i)
	}
	close(outbound)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newIdleServer(t)
	sub := Subscribe(context.Background(), dialerFor(srv), "/p", Options{})

	require.Eventually(t, func() bool {
		return sub.Status() == StatusConnected
	}, time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("close did not finish the subscription")
	}
	assert.Equal(t, StatusDisconnected, sub.Status())
}

// gatedDialer delays the underlying dial until released, so tests can
// dispose a subscription while it is still connecting.
type gatedDialer struct {
	inner Dialer
	gate  chan struct{}
}

func (d *gatedDialer) DialStream(ctx context.Context, path string) (*websocket.Conn, error) {
	<-d.gate
	return d.inner.DialStream(ctx, path)
}

func TestCloseBeforeDialFinishes(t *testing.T) {
	srv := newIdleServer(t)
	gd := &gatedDialer{inner: dialerFor(srv), gate: make(chan struct{})}

	sub := Subscribe(context.Background(), gd, "/p", Options{
		OnSample: func(models.SensorSample) { t.Error("sample after disposal") },
	})
	assert.Equal(t, StatusConnecting, sub.Status())

	sub.Close()
	assert.Equal(t, StatusDisconnected, sub.Status())

	close(gd.gate) // dial now completes; the late connection must be closed

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("late dial was not cleaned up")
	}
	assert.Equal(t, StatusDisconnected, sub.Status())
}

func TestSendIsNoopUnlessConnected(t *testing.T) {
	srv := newIdleServer(t)
	gd := &gatedDialer{inner: dialerFor(srv), gate: make(chan struct{})}
	sub := Subscribe(context.Background(), gd, "/p", Options{})

	sub.Send(map[string]string{"hello": "there"}) // connecting: dropped, no panic
	close(gd.gate)

	require.Eventually(t, func() bool {
		return sub.Status() == StatusConnected
	}, time.Second, 5*time.Millisecond)
	sub.Send(map[string]string{"hello": "again"}) // connected: delivered

	sub.Close()
	<-sub.Done()
	sub.Send(map[string]string{"hello": "void"}) // disconnected: dropped
}

func TestSupervisorResubscribesOnPathChange(t *testing.T) {
	srv := newIdleServer(t)
	sv := NewSupervisor(nil)
	defer sv.Close()

	first := sv.Set(context.Background(), dialerFor(srv), "/p?token=a", Options{})
	require.NotNil(t, first)

	// Same path: keep the existing subscription.
	same := sv.Set(context.Background(), dialerFor(srv), "/p?token=a", Options{})
	assert.Same(t, first, same)

	// New token means a new path: old one is torn down.
	second := sv.Set(context.Background(), dialerFor(srv), "/p?token=b", Options{})
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("old subscription was not torn down")
	}
	assert.Equal(t, StatusDisconnected, first.Status())
}

func TestSupervisorEmptyPathTearsDown(t *testing.T) {
	srv := newIdleServer(t)
	sv := NewSupervisor(nil)

	sub := sv.Set(context.Background(), dialerFor(srv), "/p?token=a", Options{})
	require.NotNil(t, sub)

	// Token revoked: nothing to subscribe to.
	assert.Nil(t, sv.Set(context.Background(), nil, "", Options{}))
	assert.Nil(t, sv.Current())

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on teardown")
	}
}
