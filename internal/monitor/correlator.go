package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"wardwatch/internal/alerts"
	"wardwatch/internal/models"
)

// Requester is the slice of the transport client the correlator needs.
type Requester interface {
	Request(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error)
}

// DirectoryState tracks the one-shot patient directory fetch. Failed is a
// distinct state so the caller can tell "no patients" from "still loading".
type DirectoryState int

const (
	DirectoryLoading DirectoryState = iota
	DirectoryReady
	DirectoryFailed
)

// Correlator binds inbound per-room stream messages to patient records and
// decides when a raised event surfaces patient-identifying detail. The
// directory is fetched once and immutable for the session.
type Correlator struct {
	broker *alerts.Broker
	logger *zap.Logger

	mu       sync.Mutex
	state    DirectoryState
	patients map[string]models.PatientInfo
	fetchErr error
	unread   map[string]bool
	dialog   *models.PatientInfo
}

// NewCorrelator wires a correlator to the session alert broker. A nil
// broker is a wiring bug and fails immediately.
func NewCorrelator(broker *alerts.Broker, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		broker:   alerts.Must(broker),
		logger:   logger,
		patients: make(map[string]models.PatientInfo),
		unread:   make(map[string]bool),
	}
}

// LoadDirectory fetches GET /patients/ once. Repeat calls after a
// successful load are no-ops; a failed load leaves the correlator in
// DirectoryFailed with the patient list empty.
func (c *Correlator) LoadDirectory(ctx context.Context, r Requester) error {
	c.mu.Lock()
	if c.state == DirectoryReady {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	raw, err := r.Request(ctx, "/patients/", "GET", nil)
	if err != nil {
		c.mu.Lock()
		c.state = DirectoryFailed
		c.fetchErr = err
		c.mu.Unlock()
		c.logger.Error("patient directory fetch failed", zap.Error(err))
		return fmt.Errorf("load patient directory: %w", err)
	}
	var list []models.PatientInfo
	if err := json.Unmarshal(raw, &list); err != nil {
		c.mu.Lock()
		c.state = DirectoryFailed
		c.fetchErr = err
		c.mu.Unlock()
		return fmt.Errorf("decode patient directory: %w", err)
	}

	c.mu.Lock()
	for _, p := range list {
		if p.Room != "" {
			c.patients[p.Room] = p
		}
	}
	c.state = DirectoryReady
	c.fetchErr = nil
	c.mu.Unlock()
	c.logger.Info("patient directory loaded", zap.Int("patients", len(list)))
	return nil
}

// DirectoryState returns the fetch state and, when failed, the cause.
func (c *Correlator) DirectoryState() (DirectoryState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.fetchErr
}

// Patients returns the directory records in no particular order.
func (c *Correlator) Patients() []models.PatientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.PatientInfo, 0, len(c.patients))
	for _, p := range c.patients {
		out = append(out, p)
	}
	return out
}

// Lookup resolves a room to its patient record.
func (c *Correlator) Lookup(room string) (models.PatientInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patients[room]
	return p, ok
}

// HandleDetection processes one message from the global detection stream.
// Any sample flags the room as having an unread detection and opens the
// per-room dialog; a room with no directory record skips the dialog
// instead of failing. Blood-positive samples additionally raise an
// error-severity alert whose title names the room and whose body names the
// patient when one is known.
func (c *Correlator) HandleDetection(sample models.SensorSample) {
	room := sample.Room
	if room == "" {
		c.logger.Warn("detection message without a room, ignoring")
		return
	}

	c.mu.Lock()
	c.unread[room] = true
	patient, known := c.patients[room]
	if known {
		// Last-write-wins: a newer detection retargets an open dialog.
		p := patient
		c.dialog = &p
	}
	c.mu.Unlock()

	if !known {
		c.logger.Warn("no patient on record for room, skipping dialog", zap.String("room", room))
	}

	if sample.IsBlood {
		title := fmt.Sprintf("Room %s", room)
		body := fmt.Sprintf("Blood detected in room %s", room)
		if known {
			body = fmt.Sprintf("Blood detected: %s %s (blood type %s)",
				patient.FirstName, patient.LastName, patient.BloodType)
		}
		c.broker.Show(body, alerts.SeverityError, title)
	}
}

// Dialog returns the patient targeted by the open per-room detail view.
func (c *Correlator) Dialog() (models.PatientInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialog == nil {
		return models.PatientInfo{}, false
	}
	return *c.dialog, true
}

// CloseDialog dismisses the per-room detail view.
func (c *Correlator) CloseDialog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialog = nil
}

// HasUnread reports whether a room has an unseen detection.
func (c *Correlator) HasUnread(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[room]
}

// ClearUnread marks a room's detections as seen.
func (c *Correlator) ClearUnread(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unread, room)
}
