package monitor

import (
	"sync"

	"go.uber.org/zap"

	"wardwatch/internal/alerts"
	"wardwatch/internal/colour"
	"wardwatch/internal/models"
)

// RoomWatcher consumes a single room-scoped colour stream and drives the
// fill indicator for that room. Unlike the directory view it has no
// patient context, so a blood-positive sample raises the generic alert
// with no title.
type RoomWatcher struct {
	room   string
	broker *alerts.Broker
	logger *zap.Logger

	mu   sync.Mutex
	last *models.SensorSample
}

// NewRoomWatcher builds a watcher for one room. A nil broker fails fast.
func NewRoomWatcher(room string, broker *alerts.Broker, logger *zap.Logger) *RoomWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomWatcher{room: room, broker: alerts.Must(broker), logger: logger}
}

// Room returns the monitored room key.
func (w *RoomWatcher) Room() string { return w.room }

// HandleSample processes one decoded frame from the room's colour stream.
func (w *RoomWatcher) HandleSample(sample models.SensorSample) {
	w.mu.Lock()
	w.last = &sample
	w.mu.Unlock()

	if sample.IsBlood {
		w.broker.Show("Blood detected!", alerts.SeverityError, "")
	}
}

// FillColour returns the current display colour and its darker shade.
// ok is false until the first frame arrives ("awaiting connection").
func (w *RoomWatcher) FillColour() (hex, shade string, ok bool) {
	w.mu.Lock()
	last := w.last
	w.mu.Unlock()
	if last == nil {
		return "", "", false
	}
	hex = colour.ToHex(colour.Colour{R: last.R, G: last.G, B: last.B})
	return hex, colour.Darken(hex, colour.DefaultDarkenFactor), true
}
