package extraction

import "strings"

// EventType tags an adapter lifecycle event.
type EventType string

const (
	EventStatus EventType = "status"
	EventDelta  EventType = "delta"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Status stages reported through EventStatus.
const (
	StageDownloading       = "downloading"
	StagePreparing         = "preparing"
	StageExtracting        = "extracting"
	StageValidating        = "validating"
	StageValidationWarning = "validation_warning"
)

// Event is one adapter lifecycle event. Which fields are set depends on Type:
// Stage for status, Delta for delta, Result for result, Err for error.
// Warnings accompanies a validation_warning status.
type Event struct {
	Type     EventType
	Stage    string
	Delta    string
	Result   *Result
	Err      error
	Warnings []string
}

// Observer receives events in the order they happen, on the calling goroutine.
type Observer func(Event)

func (o Observer) emit(e Event) {
	if o != nil {
		o(e)
	}
}

// Collector is an Observer that records everything it sees.
type Collector struct {
	Events []Event
}

func (c *Collector) Observe(e Event) { c.Events = append(c.Events, e) }

// Deltas concatenates every delta received.
func (c *Collector) Deltas() string {
	var b strings.Builder
	for _, e := range c.Events {
		if e.Type == EventDelta {
			b.WriteString(e.Delta)
		}
	}
	return b.String()
}
