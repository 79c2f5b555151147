package runexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
	"github.com/orchcore/orchcore/internal/tools"
)

type fakeMessageStore struct {
	history  []*domain.Message
	appended []*domain.Message
}

func (f *fakeMessageStore) List(ctx context.Context, threadID, since string, limit int) ([]*domain.Message, error) {
	return f.history, nil
}

func (f *fakeMessageStore) Append(ctx context.Context, threadID string, msgs []*domain.Message) ([]string, error) {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = "generated-id"
		}
		ids[i] = m.ID
		f.appended = append(f.appended, m)
	}
	return ids, nil
}

type fakeToolInvoker struct{}

func (fakeToolInvoker) List(allowed []string) []*tools.Tool { return nil }
func (fakeToolInvoker) InvokeAll(ctx context.Context, calls []tools.Call) []tools.Result {
	return nil
}

func TestExecutor_RunThread_NoToolsEmitsThreeFrames(t *testing.T) {
	store := &fakeMessageStore{history: []*domain.Message{
		{ID: "sys", Role: domain.RoleSystem, MessageType: domain.MessageTypeSystem},
	}}
	memBus := bus.NewMemoryBus(logger.Default())

	var frameCount int
	for _, kind := range []events.Kind{events.StreamStart, events.StreamChunk, events.StreamEnd} {
		_, err := memBus.Subscribe(kind, func(ctx context.Context, evt *events.Event) error {
			frameCount++
			return nil
		})
		require.NoError(t, err)
	}

	exec := New(store, fakeToolInvoker{}, memBus, logger.Default())
	agent := &domain.Agent{Model: "test-model"}
	thread := &domain.Thread{ID: "t1"}

	msgs, err := exec.RunThread(context.Background(), &NopModelClient{Response: "hello"}, agent, thread, Options{Mode: ModeSingleTurn})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Len(t, store.appended, 1)
	assert.Equal(t, 3, frameCount)
}

func TestExecutor_RunThread_MissingSystemMessageIsInvariant(t *testing.T) {
	store := &fakeMessageStore{history: nil}
	memBus := bus.NewMemoryBus(logger.Default())
	exec := New(store, fakeToolInvoker{}, memBus, logger.Default())

	_, err := exec.RunThread(context.Background(), &NopModelClient{}, &domain.Agent{}, &domain.Thread{ID: "t1"}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}
