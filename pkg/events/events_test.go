package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case event := <-sub:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	first := broker.Subscribe()
	second := broker.Subscribe()
	defer broker.Unsubscribe(first)
	defer broker.Unsubscribe(second)

	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(TaskEvent(EventTaskCompleted, 42, "Task 42 completed"))

	for _, sub := range []Subscriber{first, second} {
		event := waitEvent(t, sub)
		assert.Equal(t, EventTaskCompleted, event.Type)
		assert.Equal(t, "Task 42 completed", event.Message)
		assert.Equal(t, "42", event.Metadata["task_id"])
	}
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{Type: EventTaskCreated, Message: "Task 7 created"})

	event := waitEvent(t, sub)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	broker.Unsubscribe(sub)

	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never drained: its buffer fills and later events are skipped.
	stuck := broker.Subscribe()
	defer broker.Unsubscribe(stuck)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			broker.Publish(TaskEvent(EventTaskStarted, int64(i), "Task started"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestTaskEventMetadata(t *testing.T) {
	event := TaskEvent(EventTaskRetried, 9, "Task 9 queued for retry")
	assert.Equal(t, EventTaskRetried, event.Type)
	assert.Equal(t, map[string]string{"task_id": "9"}, event.Metadata)
	assert.Empty(t, event.ID)
	assert.True(t, event.Timestamp.IsZero())
}
