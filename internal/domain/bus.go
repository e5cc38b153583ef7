package domain

// EventBus hands accepted events from the HTTP edge to the processing loop.
type EventBus interface {
	Publish(ev ParsedEvent) bool
	Subscribe() <-chan ParsedEvent
	Close()
}
