package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Lifecycle event names emitted by the pipeline.
const (
	SettlementInitiated = "settlement.initiated"
	SettlementCompleted = "settlement.completed"
	SettlementFailed    = "settlement.failed"
	RefundInitiated     = "refund.initiated"
	RefundCompleted     = "refund.completed"
	RefundFailed        = "refund.failed"
	RecordEscalated     = "record.escalated"
	RecordRetried       = "record.retried"
	BatchProcessed      = "batch.processed"
	BatchError          = "batch.error"
)

// Event is a single lifecycle notification produced by the pipeline for
// downstream collaborators (notification delivery itself lives elsewhere).
type Event struct {
	Name       string            `json:"name"`
	RecordID   string            `json:"record_id,omitempty"`
	BatchID    string            `json:"batch_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Sink receives pipeline lifecycle events. Implementations must not block the
// pipeline; publishing is fire-and-forget from the caller's point of view.
type Sink interface {
	Publish(event Event)
}

// LogSink writes every event to the structured log. It is the default sink
// wired in production.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Publish(event Event) {
	logger := log.With().
		Str("component", "event_sink").
		Str("event", event.Name).
		Str("record_id", event.RecordID).
		Logger()

	e := logger.Info()
	if event.BatchID != "" {
		e = e.Str("batch_id", event.BatchID)
	}
	for k, v := range event.Fields {
		e = e.Str(k, v)
	}
	e.Msg("pipeline event")
}

// RecordingSink captures events in memory for inspection in tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything published so far.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the captured events matching the given name, in publish order.
func (s *RecordingSink) Named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
