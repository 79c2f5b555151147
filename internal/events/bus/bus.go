// Package bus provides the Event Bus (C2): typed in-process pub/sub with
// concurrent, error-isolated fan-out. Grounded on the teacher's
// internal/events/bus package, generalized from an open string-typed NATS
// subject model to the spec's closed events.Kind enum and a blocking,
// wait-for-completion Publish contract (spec §4.2).
package bus

import (
	"context"

	"github.com/orchcore/orchcore/internal/events"
)

// Handler processes one event. A Handler that returns an error or panics
// never affects its siblings or the publisher (spec §4.2, §8).
type Handler func(ctx context.Context, evt *events.Event) error

// Subscription represents an active subscription returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the C2 contract. Publish returns only after concurrent
// fan-out to every subscriber registered for evt.Kind at call time
// completes (spec §4.2, §8).
type EventBus interface {
	Publish(ctx context.Context, evt *events.Event) error
	Subscribe(kind events.Kind, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}
