package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Turn lifecycle event types. Consumers that subscribe to all of them see a
// complete, ordered trace of a turn.
const (
	// Turn boundary events
	EventTurnStarted   EventType = "turn_started"
	EventTurnCompleted EventType = "turn_completed"
	EventTurnFailed    EventType = "turn_failed"
	EventTurnCancelled EventType = "turn_cancelled"

	// Stage progression events
	EventStageEntered EventType = "stage_entered"

	// Tool execution events
	EventToolCallStarted  EventType = "tool_call_started"
	EventToolCallFinished EventType = "tool_call_finished"

	// Evaluation loop events
	EventEvaluationResult EventType = "evaluation_result"

	// Generation events
	EventFinalAnswerReady EventType = "final_answer_ready"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// MetaTurnID is the metadata key carrying the turn id. Events sharing a
// turn id are dispatched in publish order.
const MetaTurnID = "turn_id"

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// Bus is the central event dispatch system
type Bus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types
	// Returns a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	// Returns a subscription ID that can be used to unsubscribe
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// NewTurnEvent creates a BaseEvent tagged with a turn id so per-turn
// ordering holds across workers.
func NewTurnEvent(eventType EventType, turnID string, payload interface{}, source string) *BaseEvent {
	return NewEvent(eventType, payload, source, map[string]interface{}{
		MetaTurnID: turnID,
	})
}

// Type returns the event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} {
	return e.payload
}

// Metadata returns additional information about the event
func (e *BaseEvent) Metadata() map[string]interface{} {
	return e.metadata
}

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

// Source returns information about what generated the event
func (e *BaseEvent) Source() string {
	return e.sourceInfo
}

// WithMetadata adds or updates metadata and returns the same event
// This allows for fluent method chaining
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// AddMetadata adds multiple metadata entries at once and returns the same event
func (e *BaseEvent) AddMetadata(data map[string]interface{}) *BaseEvent {
	for k, v := range data {
		e.metadata[k] = v
	}
	return e
}

// TurnID extracts the turn id from an event's metadata, empty when untagged.
func TurnID(e Event) string {
	if id, ok := e.Metadata()[MetaTurnID].(string); ok {
		return id
	}
	return ""
}

type turnIDKey struct{}

// ContextWithTurnID tags a context with the turn id so publishers deep in
// the pipeline can tag their events without the id being threaded through
// every call signature.
func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, turnID)
}

// TurnIDFromContext returns the turn id carried by the context, empty when
// the context is untagged.
func TurnIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(turnIDKey{}).(string); ok {
		return id
	}
	return ""
}
