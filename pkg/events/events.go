package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType labels one kind of pipeline occurrence.
type EventType string

const (
	EventTaskCreated    EventType = "task.created"
	EventTaskStarted    EventType = "task.started"
	EventTaskCompleted  EventType = "task.completed"
	EventTaskFailed     EventType = "task.failed"
	EventTaskRetried    EventType = "task.retried"
	EventTaskRecovered  EventType = "task.recovered"
	EventCallbackSent   EventType = "callback.sent"
	EventCallbackFailed EventType = "callback.failed"
	EventGCCompleted    EventType = "gc.completed"
)

// Event describes a single pipeline occurrence.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// TaskEvent builds an event carrying the task id in its metadata.
func TaskEvent(typ EventType, taskID int64, message string) *Event {
	return &Event{
		Type:    typ,
		Message: message,
		Metadata: map[string]string{
			"task_id": strconv.FormatInt(taskID, 10),
		},
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans pipeline events out to subscribers. Delivery is best
// effort: a full subscriber buffer skips, a full bus drops, so
// publishers never stall on observability.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.subscribers[sub] {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish hands an event to the broadcast loop without blocking.
// Missing ids and timestamps are filled in here.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
		// Bus saturated, drop.
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
