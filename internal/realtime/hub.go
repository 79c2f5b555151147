package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// subscriber is the narrow interface both the WS *Client and the SSE
// sseClient implement, letting one Hub back both transports (spec §4.3).
type subscriber interface {
	id() string
	deliver(env *Envelope) bool // false => unreachable, hub prunes it
}

// Hub maintains the topic<->connection subscription graph (spec §4.3:
// "topic -> set<connection>" and "connection -> set<topic>"), generalized
// from the teacher's per-task subscriber maps in
// internal/gateway/websocket/hub.go.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[string]subscriber
	subsByConn  map[string]map[string]bool
	log         *logger.Logger
	unsubscribe func()
	sender      MessageSender
}

// New constructs a Hub and subscribes it to every event kind on the given
// bus, routing each published Event to its topic via topicOf. sender may be
// nil, in which case inbound send_message frames are rejected with an
// error envelope rather than silently dropped.
func New(eventBus bus.EventBus, sender MessageSender, log *logger.Logger) (*Hub, error) {
	h := &Hub{
		topics:     make(map[string]map[string]subscriber),
		subsByConn: make(map[string]map[string]bool),
		sender:     sender,
		log:        log.WithFields(zap.String("component", "realtime_hub")),
	}

	var subs []bus.Subscription
	for _, kind := range allKinds {
		sub, err := eventBus.Subscribe(kind, h.handleBusEvent)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	h.unsubscribe = func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}
	return h, nil
}

// allKinds lists every closed Kind this hub routes (spec §4.2's seventeen
// kinds); unrecognized data shapes on a kind simply fail topicOf's type
// assertion and are dropped, never crash the bus callback.
var allKinds = []events.Kind{
	events.AgentCreated, events.AgentUpdated, events.AgentDeleted,
	events.ThreadCreated, events.ThreadUpdated, events.ThreadMessageCreated,
	events.StreamStart, events.StreamChunk, events.AssistantID, events.StreamEnd,
	events.RunCreated, events.RunUpdated,
	events.UserUpdated,
	events.TriggerFired,
	events.NodeState, events.NodeLog, events.ExecutionFinished,
}

func (h *Hub) handleBusEvent(_ context.Context, evt *events.Event) error {
	topics, ok := topicOf(evt)
	if !ok {
		return nil
	}
	env, err := newEnvelope(TypeEvent, "", evt.Data, nowMs())
	if err != nil {
		h.log.Error("marshal event envelope failed", zap.Error(err))
		return nil
	}
	for _, topic := range topics {
		h.broadcast(topic, env)
	}
	return nil
}

func (h *Hub) broadcast(topic string, env *Envelope) {
	env.Topic = topic

	h.mu.RLock()
	recipients := make([]subscriber, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		recipients = append(recipients, s)
	}
	h.mu.RUnlock()

	var dead []subscriber
	for _, s := range recipients {
		if !s.deliver(env) {
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		h.Unsubscribe(s, topic)
	}
}

// Subscribe adds a connection to a topic's recipient set.
func (h *Hub) Subscribe(s subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]subscriber)
	}
	h.topics[topic][s.id()] = s

	if h.subsByConn[s.id()] == nil {
		h.subsByConn[s.id()] = make(map[string]bool)
	}
	h.subsByConn[s.id()][topic] = true
}

// Unsubscribe removes a connection from a topic's recipient set.
func (h *Hub) Unsubscribe(s subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.topics[topic]; ok {
		delete(set, s.id())
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	if set, ok := h.subsByConn[s.id()]; ok {
		delete(set, topic)
	}
}

// Disconnect removes a connection from every topic it was subscribed to.
func (h *Hub) Disconnect(s subscriber) {
	h.mu.Lock()
	topics := make([]string, 0, len(h.subsByConn[s.id()]))
	for topic := range h.subsByConn[s.id()] {
		topics = append(topics, topic)
	}
	delete(h.subsByConn, s.id())
	h.mu.Unlock()

	for _, topic := range topics {
		h.Unsubscribe(s, topic)
	}
}

// Close tears down the hub's bus subscriptions.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}
