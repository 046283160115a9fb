package workflow

// EventType classifies one progress notification.
type EventType string

// Event types emitted during a run.
const (
	EventStepStart     EventType = "step-start"
	EventStepSuccess   EventType = "step-success"
	EventStepError     EventType = "step-error"
	EventRecordUpdated EventType = "record-updated"
	EventFinished      EventType = "finished"
)

// Step names one pipeline stage.
type Step string

// Pipeline steps, in execution order.
const (
	StepExtract      Step = "extract"
	StepVendorSearch Step = "vendor_search"
	StepCategorize   Step = "categorize"
	StepMerge        Step = "merge"
)

// Event is one ordered, append-only progress notification. The stream exists
// only for the duration of a run and is delivered to exactly one subscriber.
type Event struct {
	Type    EventType `json:"type"`
	Step    Step      `json:"step,omitempty"`
	Info    string    `json:"info,omitempty"`
	Error   string    `json:"error,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// Emitter is the sink for a run's progress events. Emission order is the
// delivery order.
type Emitter interface {
	Emit(Event)
}

// NopEmitter discards all events, for callers without a subscriber.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) {}

// ChannelEmitter delivers events to one subscriber over a buffered channel.
// Emit blocks once the buffer fills, so a slow subscriber backpressures the
// run rather than losing or reordering events.
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

// Emit delivers one event in order.
func (e *ChannelEmitter) Emit(ev Event) {
	e.ch <- ev
}

// Events returns the subscriber side of the channel.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.ch
}

// Close ends the stream. Call only after the run has returned; Emit on a
// closed emitter panics.
func (e *ChannelEmitter) Close() {
	close(e.ch)
}

var _ Emitter = (*ChannelEmitter)(nil)
var _ Emitter = NopEmitter{}
