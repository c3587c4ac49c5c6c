/*
Package events provides an in-memory broker for task lifecycle events.

The events package implements a lightweight pub/sub bus that broadcasts
pipeline occurrences (task created, started, completed, failed, retried,
recovered) to interested subscribers. It decouples the scheduler and API
from observers such as the structured log mirror and metrics.

# Architecture

	┌──────────────────── EVENT BROKER ──────────────────────┐
	│                                                         │
	│  Publisher → Event Channel (buffer: 100)                │
	│       ↓                                                 │
	│  Broadcast Loop                                         │
	│       ↓                                                 │
	│  Subscriber Channels (buffer: 50 each)                  │
	│                                                         │
	│  Task Events:      task.created, task.started,          │
	│                    task.completed, task.failed,         │
	│                    task.retried, task.recovered         │
	│  Callback Events:  callback.sent, callback.failed       │
	│  Housekeeping:     gc.completed                         │
	└─────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - Central bus for event distribution
  - Non-blocking publish (full bus drops, full subscriber skips)
  - Graceful shutdown via stop channel

Event:
  - ID: unique identifier, filled by Publish when empty
  - Type: lifecycle label (task.completed, callback.failed, ...)
  - Timestamp: when the event occurred
  - Message: human-readable description
  - Metadata: key-value context (task_id, error, ...)

# Usage

Creating and starting the broker:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Publishing a task event:

	broker.Publish(events.TaskEvent(
		events.EventTaskCompleted, task.ID,
		fmt.Sprintf("Task %d completed", task.ID)))

Mirroring events into the log:

	stop := events.StartLogging(broker)
	defer stop()

Consuming events directly:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventTaskFailed:
				alert(event)
			}
		}
	}()

# Delivery Semantics

Delivery is fire-and-forget. Publish never waits: a saturated bus drops
the event and a full subscriber buffer skips that subscriber. The task
store is the source of truth for task state; events exist for
observation, not coordination.

# Integration Points

This package integrates with:

  - pkg/scheduler: publishes task state transitions
  - pkg/api: publishes task creation and retry requests
  - cmd/docmill: starts the log mirror alongside the scheduler

# Thread Safety

All Broker methods are safe for concurrent use. The subscriber map is
guarded by a RWMutex; broadcast holds the read lock only long enough to
attempt each channel send.
*/
package events
