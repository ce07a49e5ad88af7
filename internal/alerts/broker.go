package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity mirrors the display layer's alert colours.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy selects how the single visible-alert slot behaves.
type Policy int

const (
	// PolicyModal replaces any visible alert immediately (last-write-wins)
	// and keeps it open until explicitly dismissed.
	PolicyModal Policy = iota
	// PolicyTransient auto-dismisses after TransientDuration unless the
	// user dismisses earlier. Incidental dismissals are ignored.
	PolicyTransient
)

// TransientDuration is how long a transient alert stays visible.
const TransientDuration = 3000 * time.Millisecond

// DismissReason distinguishes a deliberate dismissal from an incidental
// one (e.g. a stray interaction outside the alert during an incident).
type DismissReason int

const (
	DismissUser DismissReason = iota
	DismissIncidental
)

// Event is one raised notification.
type Event struct {
	ID       string
	Severity Severity
	Title    string
	Body     string
	// Flash marks error-severity modal alerts for the pulsing treatment.
	Flash    bool
	RaisedAt time.Time
}

// Broker serializes alert requests into a single visible slot. One broker
// exists per authenticated session; it is constructed at session start and
// shut down at session end.
type Broker struct {
	policy Policy
	logger *zap.Logger
	// transientAfter is TransientDuration outside of tests.
	transientAfter time.Duration

	mu       sync.Mutex
	visible  *Event
	gen      uint64
	shutdown bool

	// onChange observes the visible slot for the presentation layer.
	// nil means no event; called outside the lock is not needed here
	// because all mutation funnels through Show/dismiss.
	onChange func(*Event)
}

// NewBroker builds a session broker with the given policy. onChange may be
// nil; when set it receives the visible event after every change (nil on
// dismissal).
func NewBroker(policy Policy, logger *zap.Logger, onChange func(*Event)) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{policy: policy, logger: logger, transientAfter: TransientDuration, onChange: onChange}
}

// Must guards dependency wiring: components that need a broker call this
// so a missing session broker fails at construction, not mid-incident.
func Must(b *Broker) *Broker {
	if b == nil {
		panic("alerts: broker used outside an initialized session")
	}
	return b
}

// Show raises an alert. A visible alert is replaced in place; two alerts
// are never visible at once and raising never stacks or crashes.
func (b *Broker) Show(body string, severity Severity, title string) Event {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		panic("alerts: Show called after session shutdown")
	}
	b.gen++
	gen := b.gen
	ev := Event{
		ID:       uuid.NewString(),
		Severity: severity,
		Title:    title,
		Body:     body,
		Flash:    b.policy == PolicyModal && severity == SeverityError,
		RaisedAt: time.Now(),
	}
	b.visible = &ev
	b.mu.Unlock()

	b.logger.Info("alert raised",
		zap.String("severity", string(severity)),
		zap.String("title", title),
	)
	b.notify(&ev)

	if b.policy == PolicyTransient {
		time.AfterFunc(b.transientAfter, func() {
			b.dismiss(gen)
		})
	}
	return ev
}

// Visible returns the currently displayed alert, if any.
func (b *Broker) Visible() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visible == nil {
		return Event{}, false
	}
	return *b.visible, true
}

// Dismiss closes the visible alert. Incidental dismissals are ignored
// under the transient policy so an active incident cannot be hidden by a
// stray interaction.
func (b *Broker) Dismiss(reason DismissReason) {
	if reason == DismissIncidental && b.policy == PolicyTransient {
		return
	}
	b.mu.Lock()
	gen := b.gen
	b.mu.Unlock()
	b.dismiss(gen)
}

func (b *Broker) dismiss(gen uint64) {
	b.mu.Lock()
	// A newer alert superseded the one this dismissal was aimed at.
	if b.gen != gen || b.visible == nil {
		b.mu.Unlock()
		return
	}
	b.visible = nil
	b.mu.Unlock()
	b.notify(nil)
}

// Shutdown ends the session. Further Show calls are programmer errors.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	b.shutdown = true
	b.visible = nil
	b.mu.Unlock()
}

func (b *Broker) notify(ev *Event) {
	if b.onChange != nil {
		b.onChange(ev)
	}
}
