package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events"
)

// MemoryBus implements EventBus with in-process fan-out. Publish blocks
// until every subscriber registered for the event's kind at call time has
// been invoked, isolating each subscriber's error/panic from the others and
// from the publisher (spec §4.2). This is the default bus; NATSBus is an
// alternate implementation behind the same interface (spec §9's distributed
// redesign note).
type MemoryBus struct {
	mu     sync.RWMutex // guards subs; held only while copying the slice (spec §5)
	subs   map[events.Kind][]*memorySubscription
	logger *logger.Logger
	closed bool
}

type memorySubscription struct {
	bus     *MemoryBus
	kind    events.Kind
	handler Handler
	mu      sync.Mutex
	active  bool
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subs[s.kind]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NewMemoryBus creates a new in-process event bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[events.Kind][]*memorySubscription),
		logger: log,
	}
}

// Publish fans out evt to every subscriber of evt.Kind concurrently and
// waits for all of them to finish before returning. Registration is
// idempotent with respect to ordering: handlers are invoked in the order
// they were registered is not guaranteed across subscribers, but each
// subscriber sees a strict per-publish-site FIFO relative to its own prior
// deliveries (spec §4.2, §5).
func (b *MemoryBus) Publish(ctx context.Context, evt *events.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	// Copy the slice under the lock, then release before invoking handlers
	// so the critical section stays short (spec §5).
	subs := make([]*memorySubscription, len(b.subs[evt.Kind]))
	copy(subs, b.subs[evt.Kind])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}

		wg.Add(1)
		go func(s *memorySubscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked",
						zap.String("kind", string(evt.Kind)),
						zap.Any("recovered", r))
				}
			}()
			if err := s.handler(ctx, evt); err != nil {
				b.logger.Error("event subscriber error",
					zap.String("kind", string(evt.Kind)),
					zap.Error(err))
			}
		}(sub)
	}
	wg.Wait()

	b.logger.Debug("published event", zap.String("kind", string(evt.Kind)))
	return nil
}

// Subscribe registers handler for kind. Returns a Subscription whose
// Unsubscribe removes it.
func (b *MemoryBus) Subscribe(kind events.Kind, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{bus: b, kind: kind, handler: handler, active: true}
	b.subs[kind] = append(b.subs[kind], sub)
	b.logger.Debug("subscribed", zap.String("kind", string(kind)))
	return sub, nil
}

// Close deactivates all subscriptions. Safe to call once at shutdown.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
		}
	}
	b.subs = make(map[events.Kind][]*memorySubscription)
	b.logger.Info("memory event bus closed")
}

// IsConnected always reports true for the in-process bus while it isn't closed.
func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}
