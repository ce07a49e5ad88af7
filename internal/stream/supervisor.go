package stream

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Supervisor owns the "one live subscription per (client, path)" rule.
// Whenever the watched inputs change (a fresh token producing a new path,
// or a new transport client) it tears the current subscription down and
// constructs a replacement. It never reuses an old connection.
type Supervisor struct {
	mu      sync.Mutex
	current *Subscription
	path    string
	logger  *zap.Logger
}

// NewSupervisor returns an empty supervisor with nothing subscribed.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger}
}

// Set points the supervisor at (dialer, path). If that pair is already
// live the call is a no-op. An empty path (token absent: "do not subscribe
// yet") or nil dialer tears down without resubscribing.
func (sv *Supervisor) Set(ctx context.Context, d Dialer, path string, opts Options) *Subscription {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.current != nil && sv.path == path && sv.current.Status() != StatusDisconnected {
		return sv.current
	}
	if sv.current != nil {
		sv.logger.Info("resubscribing", zap.String("old", sv.path), zap.String("new", path))
		sv.current.Close()
		sv.current = nil
	}
	sv.path = path
	if path == "" || d == nil {
		return nil
	}
	sv.current = Subscribe(ctx, d, path, opts)
	return sv.current
}

// Current returns the live subscription, or nil when nothing is subscribed.
func (sv *Supervisor) Current() *Subscription {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.current
}

// Close tears down the current subscription, if any.
func (sv *Supervisor) Close() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.current != nil {
		sv.current.Close()
		sv.current = nil
	}
	sv.path = ""
}
