package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
)

type fakeAgentLister struct {
	agents []*domain.Agent
}

func (f *fakeAgentLister) ListScheduled(ctx context.Context) ([]*domain.Agent, error) {
	return f.agents, nil
}

type fakeBusy struct{ held map[string]bool }

func (f *fakeBusy) IsHeld(agentID string) bool { return f.held[agentID] }

func schedule(s string) *string { return &s }

func TestScheduler_LoadFromStorage_SkipsInvalidCron(t *testing.T) {
	lister := &fakeAgentLister{agents: []*domain.Agent{
		{ID: "good", Schedule: schedule("*/5 * * * *")},
		{ID: "bad", Schedule: schedule("not a cron")},
	}}

	s, err := New("", lister, &fakeBusy{}, func(ctx context.Context, agentID string) {}, logger.Default())
	require.NoError(t, err)

	require.NoError(t, s.LoadFromStorage(context.Background()))

	s.mu.Lock()
	_, goodRegistered := s.entries["good"]
	_, badRegistered := s.entries["bad"]
	s.mu.Unlock()
	assert.True(t, goodRegistered)
	assert.False(t, badRegistered)
}

func TestScheduler_FireSkipsWhenBusy(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	busy := &fakeBusy{held: map[string]bool{"a1": true}}

	s, err := New("", &fakeAgentLister{}, busy, func(ctx context.Context, agentID string) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, logger.Default())
	require.NoError(t, err)

	s.fire("a1")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, fired)
}

func TestScheduler_FireRunsWhenIdle(t *testing.T) {
	var mu sync.Mutex
	var firedAgent string

	s, err := New("", &fakeAgentLister{}, &fakeBusy{held: map[string]bool{}}, func(ctx context.Context, agentID string) {
		mu.Lock()
		firedAgent = agentID
		mu.Unlock()
	}, logger.Default())
	require.NoError(t, err)

	s.fire("a2")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a2", firedAgent)
}

func TestScheduler_UnscheduleAgent_RemovesEntry(t *testing.T) {
	s, err := New("", &fakeAgentLister{}, &fakeBusy{}, func(ctx context.Context, agentID string) {}, logger.Default())
	require.NoError(t, err)

	require.NoError(t, s.ScheduleAgent(&domain.Agent{ID: "a1", Schedule: schedule("0 * * * *")}))
	s.mu.Lock()
	_, ok := s.entries["a1"]
	s.mu.Unlock()
	require.True(t, ok)

	s.UnscheduleAgent("a1")
	s.mu.Lock()
	_, ok = s.entries["a1"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestScheduler_ScheduleAgent_NonScheduledIsNoop(t *testing.T) {
	s, err := New("", &fakeAgentLister{}, &fakeBusy{}, func(ctx context.Context, agentID string) {}, logger.Default())
	require.NoError(t, err)

	require.NoError(t, s.ScheduleAgent(&domain.Agent{ID: "a1"}))
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 0)
}

func TestScheduler_NextRunAt_ComputesFollowingFireTime(t *testing.T) {
	s, err := New("", &fakeAgentLister{}, &fakeBusy{}, func(ctx context.Context, agentID string) {}, logger.Default())
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 12, 3, 0, 0, time.UTC)
	next, ok := s.NextRunAt("*/5 * * * *", from)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC), next)
}

func TestScheduler_NextRunAt_InvalidScheduleReportsFalse(t *testing.T) {
	s, err := New("", &fakeAgentLister{}, &fakeBusy{}, func(ctx context.Context, agentID string) {}, logger.Default())
	require.NoError(t, err)

	_, ok := s.NextRunAt("not a cron", time.Now())
	assert.False(t, ok)
}

func TestTimeLocation_DefaultsToUTC(t *testing.T) {
	loc, err := timeLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
