// Package eventbus provides event bus implementations
package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChannelBus is an implementation of Bus using Go channels. Each worker
// owns its own queue and events are routed to a worker by turn id, so
// events belonging to one turn are always dispatched in publish order.
type ChannelBus struct {
	// subscribers maps event types to a map of subscription IDs to event handlers
	subscribers map[EventType]map[string]EventHandler

	// allSubscribers contains handlers that receive all events regardless of type
	allSubscribers map[string]EventHandler

	// eventChans holds one queue per worker; routing is by turn id hash
	eventChans []chan eventWithContext

	// done is used to signal graceful shutdown
	done chan struct{}

	// closed indicates if the event bus has been shut down
	closed bool

	// wg keeps track of active goroutines
	wg sync.WaitGroup

	// mutex protects the subscribers and allSubscribers maps
	mutex sync.RWMutex

	// Configuration
	bufferSize    int
	workerCount   int
	maxRetries    int
	retryInterval time.Duration
}

// eventWithContext bundles an event with its context for processing
type eventWithContext struct {
	ctx   context.Context
	event Event
}

// ChannelBusOption configures the channel-based event bus
type ChannelBusOption func(*ChannelBus)

// WithBufferSize sets each worker queue's buffer size
func WithBufferSize(size int) ChannelBusOption {
	return func(eb *ChannelBus) {
		eb.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) ChannelBusOption {
	return func(eb *ChannelBus) {
		eb.workerCount = count
	}
}

// WithRetries configures the retry behavior for event handlers
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelBusOption {
	return func(eb *ChannelBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// NewChannelBus creates a new channel-based event bus
func NewChannelBus(options ...ChannelBusOption) *ChannelBus {
	eb := &ChannelBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),

		// Default configuration
		bufferSize:    100,
		workerCount:   4,
		maxRetries:    3,
		retryInterval: time.Millisecond * 100,
	}

	// Apply options
	for _, option := range options {
		option(eb)
	}
	if eb.workerCount < 1 {
		eb.workerCount = 1
	}

	// One queue per worker keeps same-turn events in order
	eb.eventChans = make([]chan eventWithContext, eb.workerCount)
	for i := range eb.eventChans {
		eb.eventChans[i] = make(chan eventWithContext, eb.bufferSize)
	}

	// Start the worker pool
	eb.startWorkers()

	return eb
}

// startWorkers initializes the goroutines that process events
func (eb *ChannelBus) startWorkers() {
	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}
}

// worker processes events from its own queue
func (eb *ChannelBus) worker(id int) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.done:
			return
		case evt := <-eb.eventChans[id]:
			eb.processEvent(evt)
		}
	}
}

// workerFor picks a queue for an event. Events carrying the same turn id
// always hash to the same worker; untagged events go to worker zero.
func (eb *ChannelBus) workerFor(event Event) int {
	turnID := TurnID(event)
	if turnID == "" {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(turnID))
	return int(h.Sum32() % uint32(eb.workerCount))
}

// processEvent handles the event dispatch to all relevant subscribers
func (eb *ChannelBus) processEvent(evt eventWithContext) {
	// Skip processing if context is already cancelled
	if evt.ctx.Err() != nil {
		return
	}

	eb.mutex.RLock()

	// Create copies of the handler maps to avoid holding the lock during execution
	// This prevents deadlocks if handlers try to subscribe/unsubscribe
	typeHandlers := make(map[string]EventHandler)
	if handlers, exists := eb.subscribers[evt.event.Type()]; exists {
		for id, handler := range handlers {
			typeHandlers[id] = handler
		}
	}

	// Create a copy of all-event subscribers
	allHandlers := make(map[string]EventHandler)
	for id, handler := range eb.allSubscribers {
		allHandlers[id] = handler
	}

	eb.mutex.RUnlock()

	// Dispatch to type-specific handlers
	for _, handler := range typeHandlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}

	// Dispatch to all-event handlers
	for _, handler := range allHandlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}
}

// executeHandler runs a handler with retry logic
func (eb *ChannelBus) executeHandler(ctx context.Context, event Event, handler EventHandler) {
	var err error

	// Try to execute with retries
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		// Skip if context is cancelled
		if ctx.Err() != nil {
			return
		}

		// Execute the handler
		err = handler(ctx, event)
		if err == nil {
			return // Success!
		}

		// If this was the last attempt, don't sleep
		if attempt == eb.maxRetries {
			break
		}

		// Wait before retrying
		select {
		case <-ctx.Done():
			return // Context cancelled during wait
		case <-time.After(eb.retryInterval):
			// Continue to next attempt
		}
	}

	if err != nil {
		// Log the error but don't stop other handlers
		fmt.Printf("Event handler error (event_type: %s, retries: %d): %v\n",
			event.Type(), eb.maxRetries, err)
	}
}

// Publish sends an event to all subscribed handlers
func (eb *ChannelBus) Publish(ctx context.Context, event Event) error {
	eb.mutex.RLock()
	closed := eb.closed
	eb.mutex.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	// Queued events carry a detached context so terminal events published
	// just before a turn's context ends still reach subscribers.
	evt := eventWithContext{ctx: context.WithoutCancel(ctx), event: event}

	// Try to send on the owning worker's queue, respecting the context
	ch := eb.eventChans[eb.workerFor(event)]
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.done:
		return fmt.Errorf("event bus is closed")
	case ch <- evt:
		// Event successfully queued
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (eb *ChannelBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	// Generate a unique subscription ID
	subscriptionID := uuid.New().String()

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	// Register the handler for each event type
	for _, eventType := range eventTypes {
		if _, exists := eb.subscribers[eventType]; !exists {
			eb.subscribers[eventType] = make(map[string]EventHandler)
		}
		eb.subscribers[eventType][subscriptionID] = handler
	}

	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (eb *ChannelBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	// Generate a unique subscription ID
	subscriptionID := uuid.New().String()

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	// Register the handler for all events
	eb.allSubscribers[subscriptionID] = handler

	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (eb *ChannelBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return fmt.Errorf("event bus is closed")
	}

	// Remove from all subscribers if present
	delete(eb.allSubscribers, subscriptionID)

	// Remove from type-specific subscribers
	for eventType, subscribers := range eb.subscribers {
		if _, exists := subscribers[subscriptionID]; exists {
			delete(eb.subscribers[eventType], subscriptionID)
		}
	}

	return nil
}

// Close shuts down the event bus, cleaning up resources
func (eb *ChannelBus) Close() error {
	eb.mutex.Lock()
	if eb.closed {
		eb.mutex.Unlock()
		return nil // Already closed
	}

	eb.closed = true
	eb.mutex.Unlock()

	// Signal all workers to stop
	close(eb.done)

	// Wait for all workers to finish
	eb.wg.Wait()

	return nil
}
