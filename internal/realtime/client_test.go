package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events/bus"
)

type fakeSender struct {
	threadID, content string
	metadata          map[string]any
	err               error
}

func (f *fakeSender) SendMessage(_ context.Context, threadID, content string, metadata map[string]any) error {
	f.threadID, f.content, f.metadata = threadID, content, metadata
	return f.err
}

func newTestClient(t *testing.T, sender MessageSender) (*Client, *Hub) {
	t.Helper()
	memBus := bus.NewMemoryBus(logger.Default())
	hub, err := New(memBus, sender, logger.Default())
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	return &Client{connID: "c1", hub: hub, send: make(chan []byte, 8), log: logger.Default()}, hub
}

func drainOne(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	default:
		t.Fatal("expected a queued envelope, got none")
		return Envelope{}
	}
}

func TestClient_SendMessage_DispatchesToSender(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestClient(t, sender)

	c.handleMessage(&ClientMessage{Type: TypeSendMessage, ThreadID: "t1", Content: "hello", Metadata: map[string]any{"k": "v"}})

	assert.Equal(t, "t1", sender.threadID)
	assert.Equal(t, "hello", sender.content)
	assert.Equal(t, "v", sender.metadata["k"])
}

func TestClient_SendMessage_MissingFieldsRejected(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestClient(t, sender)

	c.handleMessage(&ClientMessage{Type: TypeSendMessage, MessageID: "req1"})

	assert.Empty(t, sender.threadID)
	env := drainOne(t, c)
	assert.Equal(t, TypeError, env.Type)
	assert.Equal(t, "req1", env.ReqID)
}

func TestClient_SendMessage_NoSenderConfiguredRejected(t *testing.T) {
	c, _ := newTestClient(t, nil)

	c.handleMessage(&ClientMessage{Type: TypeSendMessage, ThreadID: "t1", Content: "hi"})

	env := drainOne(t, c)
	assert.Equal(t, TypeError, env.Type)
}

func TestClient_LegacyAliasNormalized(t *testing.T) {
	assert.Equal(t, "agent_event", normalizeInboundType("agent_state"))
	assert.Equal(t, TypeSubscribe, normalizeInboundType(TypeSubscribe))
}
