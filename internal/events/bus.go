package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventStateTransition EventType = "STATE_TRANSITION"
	EventSignalTriggered EventType = "SIGNAL_TRIGGERED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventTargetReached   EventType = "TARGET_REACHED"
	EventVetoRejected    EventType = "VETO_REJECTED"
	EventWeightsUpdated  EventType = "WEIGHTS_UPDATED"
	EventCycleCompleted  EventType = "CYCLE_COMPLETED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Delivery is asynchronous so a
// slow subscriber never blocks the refresh cycle.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTransition publishes a lifecycle state change
func (eb *EventBus) PublishTransition(ticker, from, to, reason string) {
	eb.Publish(Event{
		Type: EventStateTransition,
		Data: map[string]interface{}{
			"ticker": ticker,
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishSignalTriggered publishes a pair crossing into the SIGNAL state
func (eb *EventBus) PublishSignalTriggered(ticker string, drawdown float64, confidence string) {
	eb.Publish(Event{
		Type: EventSignalTriggered,
		Data: map[string]interface{}{
			"ticker":     ticker,
			"drawdown":   drawdown,
			"confidence": confidence,
		},
	})
}

// PublishPositionOpened publishes a completed entry
func (eb *EventBus) PublishPositionOpened(ticker string, entryPrice, notional float64) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"ticker":      ticker,
			"entry_price": entryPrice,
			"notional":    notional,
		},
	})
}

// PublishPositionClosed publishes a completed close
func (eb *EventBus) PublishPositionClosed(ticker string, exitPrice, realizedPL, plFraction float64) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"ticker":      ticker,
			"exit_price":  exitPrice,
			"realized_pl": realizedPL,
			"pl_fraction": plFraction,
		},
	})
}

// PublishVetoRejected publishes an entry blocked by the risk gate
func (eb *EventBus) PublishVetoRejected(ticker, criterion, reason string) {
	eb.Publish(Event{
		Type: EventVetoRejected,
		Data: map[string]interface{}{
			"ticker":    ticker,
			"criterion": criterion,
			"reason":    reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source":  source,
			"message": message,
		},
	})
}
