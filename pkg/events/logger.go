package events

import (
	"github.com/docmill/docmill/pkg/log"
)

// StartLogging subscribes to the broker and mirrors every event into
// the structured log. The returned stop function unsubscribes and
// waits for the mirror goroutine to drain.
func StartLogging(b *Broker) func() {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		logger := log.WithComponent("events")
		for event := range sub {
			logger.Info().
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Interface("metadata", event.Metadata).
				Msg(event.Message)
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}
