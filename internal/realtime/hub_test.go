package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

func TestTopicOf(t *testing.T) {
	topics, ok := topicOf(&events.Event{Kind: events.RunUpdated, Data: events.PayloadRun{RunID: "r1", AgentID: "a1", ThreadID: "t1"}})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"agent:a1", "thread:t1"}, topics)

	_, ok = topicOf(&events.Event{Kind: events.RunUpdated, Data: "not a payload"})
	assert.False(t, ok)
}

type fakeSub struct {
	connID    string
	delivered []*Envelope
}

func (f *fakeSub) id() string { return f.connID }
func (f *fakeSub) deliver(env *Envelope) bool {
	f.delivered = append(f.delivered, env)
	return true
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	memBus := bus.NewMemoryBus(logger.Default())
	h, err := New(memBus, nil, logger.Default())
	require.NoError(t, err)
	defer h.Close()

	sub := &fakeSub{connID: "c1"}
	h.Subscribe(sub, "agent:a1")

	err = memBus.Publish(context.Background(), &events.Event{Kind: events.AgentUpdated, Data: events.PayloadAgent{AgentID: "a1", OwnerID: "u1"}})
	require.NoError(t, err)

	require.Len(t, sub.delivered, 1)
	assert.Equal(t, "agent:a1", sub.delivered[0].Topic)
	assert.Equal(t, TypeEvent, sub.delivered[0].Type)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	memBus := bus.NewMemoryBus(logger.Default())
	h, err := New(memBus, nil, logger.Default())
	require.NoError(t, err)
	defer h.Close()

	sub := &fakeSub{connID: "c1"}
	h.Subscribe(sub, "agent:a1")
	h.Unsubscribe(sub, "agent:a1")

	err = memBus.Publish(context.Background(), &events.Event{Kind: events.AgentUpdated, Data: events.PayloadAgent{AgentID: "a1", OwnerID: "u1"}})
	require.NoError(t, err)
	assert.Empty(t, sub.delivered)
}
