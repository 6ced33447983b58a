// Package events delivers committed domain changes to the realtime layer.
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/observability"
)

// Publisher hands an event to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event domain.Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Sink is a named publisher inside a Multi.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Multi fans an event out to every sink. A failing sink is logged and
// counted; it never blocks delivery to the others.
type Multi struct {
	sinks []Sink
	log   logrus.FieldLogger
}

// NewMulti creates a fan-out publisher.
func NewMulti(log logrus.FieldLogger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log}
}

// Publish delivers the event to every sink and always returns nil.
func (m *Multi) Publish(ctx context.Context, event domain.Event) error {
	observability.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()
	for _, sink := range m.sinks {
		if err := sink.Publisher.Publish(ctx, event); err != nil {
			observability.EventPublishErrorsTotal.WithLabelValues(sink.Name).Inc()
			m.log.WithFields(logrus.Fields{
				"sink":       sink.Name,
				"event_type": event.Type,
				"tenant_id":  event.TenantID,
				"entity_id":  event.EntityID,
			}).WithError(err).Warn("event publish failed")
		}
	}
	return nil
}

// LogPublisher writes events to the logger at debug level.
type LogPublisher struct {
	log logrus.FieldLogger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.log.WithFields(logrus.Fields{
		"event_type": event.Type,
		"tenant_id":  event.TenantID,
		"entity_id":  event.EntityID,
	}).Debug("domain event")
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the event.
func (r *Recorder) Publish(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// OfType returns recorded events of the given type.
func (r *Recorder) OfType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
