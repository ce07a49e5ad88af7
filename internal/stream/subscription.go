package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wardwatch/internal/models"
)

// Status is the lifecycle state of one subscription. Transitions are
// one-way: connecting→connected→disconnected, or connecting→disconnected
// on immediate dial failure. A disconnected subscription never self-heals;
// the supervisor creates a replacement instead.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Dialer opens one websocket connection for a subscription path.
// *api.Client satisfies this.
type Dialer interface {
	DialStream(ctx context.Context, path string) (*websocket.Conn, error)
}

// Options carries the observer callbacks for a subscription. All callbacks
// fire synchronously on the subscription's read goroutine, so frames for
// one subscription are always handled one at a time in arrival order.
type Options struct {
	OnSample func(models.SensorSample)
	OnOpen   func()
	OnClose  func()
	Logger   *zap.Logger
}

// Subscription binds one stream path to one live connection and tracks the
// most recently decoded sample. Malformed frames are dropped with a
// diagnostic and never disturb the retained sample.
type Subscription struct {
	path string
	opts Options

	mu     sync.Mutex
	status Status
	conn   *websocket.Conn
	closed bool
	last   *models.SensorSample

	done chan struct{}
}

// Subscribe starts a subscription for (dialer, path). It returns
// immediately in the connecting state; dial failure surfaces through
// Status and the OnClose callback, never as an error return.
func Subscribe(ctx context.Context, d Dialer, path string, opts Options) *Subscription {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Subscription{
		path:   path,
		opts:   opts,
		status: StatusConnecting,
		done:   make(chan struct{}),
	}
	go s.run(ctx, d)
	return s
}

// Path returns the subscribed stream path.
func (s *Subscription) Path() string { return s.path }

// Status returns the current lifecycle state.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSample returns the most recently decoded sample, if any frame has
// been received yet.
func (s *Subscription) LastSample() (models.SensorSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.SensorSample{}, false
	}
	return *s.last, true
}

// Done is closed once the subscription has reached the disconnected state
// and its connection (if one was ever opened) has been released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Send writes one JSON message to the stream. Unless the subscription is
// connected this is a no-op with a diagnostic.
func (s *Subscription) Send(v any) {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == StatusConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		s.opts.Logger.Warn("stream not connected, message not sent", zap.String("path", s.path))
		return
	}
	if err := conn.WriteJSON(v); err != nil {
		s.opts.Logger.Warn("stream write failed", zap.String("path", s.path), zap.Error(err))
	}
}

// Close tears the subscription down. It is idempotent and safe to call
// before the dial has finished; in that case the connection is closed by
// the dial goroutine as soon as it materializes, still exactly once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.status = StatusDisconnected
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		// Unblocks the read loop, which then closes done and fires OnClose.
		_ = conn.Close()
	}
}

func (s *Subscription) run(ctx context.Context, d Dialer) {
	conn, err := d.DialStream(ctx, s.path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.finish()
		return
	}
	if err != nil {
		s.closed = true
		s.status = StatusDisconnected
		s.mu.Unlock()
		s.finish()
		return
	}
	s.conn = conn
	s.status = StatusConnected
	s.mu.Unlock()

	if s.opts.OnOpen != nil {
		s.opts.OnOpen()
	}
	s.readLoop(conn)
}

func (s *Subscription) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.opts.Logger.Warn("stream read error", zap.String("path", s.path), zap.Error(err))
			}
			s.mu.Lock()
			already := s.closed
			s.closed = true
			s.status = StatusDisconnected
			s.conn = nil
			s.mu.Unlock()
			if !already {
				_ = conn.Close()
			}
			s.finish()
			return
		}

		var sample models.SensorSample
		if err := json.Unmarshal(payload, &sample); err != nil {
			// Malformed frame: drop it, keep the last good sample.
			s.opts.Logger.Warn("dropping undecodable frame",
				zap.String("path", s.path),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		s.last = &sample
		s.mu.Unlock()
		if s.opts.OnSample != nil {
			s.opts.OnSample(sample)
		}
	}
}

func (s *Subscription) finish() {
	if s.opts.OnClose != nil {
		s.opts.OnClose()
	}
	close(s.done)
}
