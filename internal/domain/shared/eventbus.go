package shared

import "context"

// EventHandler consumes relayed domain events. An empty EventTypes result
// subscribes the handler to every type.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher hands committed events to their consumers. Services call it
// after a successful save; a publish error never undoes the save.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is an in-process publisher with a subscription list and a
// lifecycle tied to the server
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
