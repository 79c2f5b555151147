package taskrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events/bus"
	"github.com/orchcore/orchcore/internal/runexec"
)

type fakeAgents struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func (f *fakeAgents) Get(ctx context.Context, id string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgents) Update(ctx context.Context, a *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}

type fakeThreads struct{}

func (fakeThreads) CreateWithSystemMessage(ctx context.Context, agent *domain.Agent, tt domain.ThreadType, title string) (*domain.Thread, *domain.Message, error) {
	return &domain.Thread{ID: "thread-1", AgentID: agent.ID, ThreadType: tt}, &domain.Message{ID: "sys"}, nil
}

func (fakeThreads) GetForAgent(ctx context.Context, threadID, agentID string) (*domain.Thread, error) {
	return &domain.Thread{ID: threadID, AgentID: agentID}, nil
}

type fakeRuns struct {
	finished domain.RunStatus
}

func (f *fakeRuns) Create(ctx context.Context, agentID, threadID string, trigger domain.RunTrigger) (*domain.Run, error) {
	return &domain.Run{ID: "run-1", AgentID: agentID, ThreadID: threadID, Trigger: trigger, Status: domain.RunQueued}, nil
}
func (f *fakeRuns) Start(ctx context.Context, id string) (*domain.Run, error) {
	return &domain.Run{ID: id, Status: domain.RunRunning}, nil
}
func (f *fakeRuns) Finish(ctx context.Context, id string, status domain.RunStatus, runErr, summary string) (*domain.Run, error) {
	f.finished = status
	return &domain.Run{ID: id, Status: status, Error: runErr, Summary: summary}, nil
}
func (f *fakeRuns) FirstAssistantMessageSince(ctx context.Context, threadID string, since time.Time) (string, error) {
	return "the agent said hello", nil
}

type fakeMessages struct{}

func (fakeMessages) Append(ctx context.Context, threadID string, msgs []*domain.Message) ([]string, error) {
	return []string{"m1"}, nil
}

type fakeExecutor struct {
	err error
}

func (f *fakeExecutor) RunThread(ctx context.Context, client runexec.ModelClient, agent *domain.Agent, thread *domain.Thread, opts runexec.Options) ([]*domain.Message, error) {
	return nil, f.err
}

func TestRunner_Execute_Success(t *testing.T) {
	agents := &fakeAgents{agents: map[string]*domain.Agent{"a1": {ID: "a1", Name: "Agent One"}}}
	runs := &fakeRuns{}
	runner := New(agents, fakeThreads{}, runs, fakeMessages{}, &fakeExecutor{}, &runexec.NopModelClient{}, bus.NewMemoryBus(logger.Default()), logger.Default())

	res, err := runner.Execute(context.Background(), TaskParams{AgentID: "a1", Trigger: domain.TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, domain.RunSuccess, runs.finished)

	a, _ := agents.Get(context.Background(), "a1")
	assert.Equal(t, domain.AgentIdle, a.Status)
}

func TestRunner_Execute_BusyOnContention(t *testing.T) {
	agents := &fakeAgents{agents: map[string]*domain.Agent{"a1": {ID: "a1"}}}
	runner := New(agents, fakeThreads{}, &fakeRuns{}, fakeMessages{}, &fakeExecutor{}, &runexec.NopModelClient{}, bus.NewMemoryBus(logger.Default()), logger.Default())

	require.True(t, runner.lock.TryAcquire("a1"))
	defer runner.lock.Release("a1")

	_, err := runner.Execute(context.Background(), TaskParams{AgentID: "a1", Trigger: domain.TriggerManual})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRunner_Execute_ExecutorFailureMarksAgentError(t *testing.T) {
	agents := &fakeAgents{agents: map[string]*domain.Agent{"a1": {ID: "a1"}}}
	runs := &fakeRuns{}
	runner := New(agents, fakeThreads{}, runs, fakeMessages{}, &fakeExecutor{err: assertErr}, &runexec.NopModelClient{}, bus.NewMemoryBus(logger.Default()), logger.Default())

	_, err := runner.Execute(context.Background(), TaskParams{AgentID: "a1", Trigger: domain.TriggerSchedule})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, runs.finished)

	a, _ := agents.Get(context.Background(), "a1")
	assert.Equal(t, domain.AgentError, a.Status)
}

var assertErr = domain.ErrUnavailable

type fakeNextRunComputer struct {
	next time.Time
}

func (f fakeNextRunComputer) NextRunAt(schedule string, from time.Time) (time.Time, bool) {
	return f.next, true
}

func TestRunner_Execute_SuccessPersistsNextRunAtForScheduledAgent(t *testing.T) {
	schedule := "*/5 * * * *"
	agents := &fakeAgents{agents: map[string]*domain.Agent{"a1": {ID: "a1", Name: "Agent One", Schedule: &schedule}}}
	runner := New(agents, fakeThreads{}, &fakeRuns{}, fakeMessages{}, &fakeExecutor{}, &runexec.NopModelClient{}, bus.NewMemoryBus(logger.Default()), logger.Default())

	want := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second)
	runner.SetNextRunComputer(fakeNextRunComputer{next: want})

	_, err := runner.Execute(context.Background(), TaskParams{AgentID: "a1", Trigger: domain.TriggerSchedule})
	require.NoError(t, err)

	a, _ := agents.Get(context.Background(), "a1")
	require.NotNil(t, a.NextRunAt)
	assert.True(t, a.NextRunAt.Equal(want))
}
