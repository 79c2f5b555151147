package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events/bus"
)

type fakeExecutionStore struct {
	mu        sync.Mutex
	nodes     map[string]domain.NodeExecutionStatus
	finished  domain.WorkflowExecutionStatus
	finishErr string
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{nodes: map[string]domain.NodeExecutionStatus{}}
}

func (f *fakeExecutionStore) CreateExecution(ctx context.Context, workflowID, ownerID string, nodeIDs []string) (*domain.WorkflowExecution, error) {
	return &domain.WorkflowExecution{ID: "exec-1", WorkflowID: workflowID, OwnerID: ownerID, Status: domain.ExecutionQueued}, nil
}

func (f *fakeExecutionStore) UpdateNodeState(ctx context.Context, executionID, nodeID string, status domain.NodeExecutionStatus, output []byte, nodeErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[nodeID] = status
	return nil
}

func (f *fakeExecutionStore) FinishExecution(ctx context.Context, executionID string, status domain.WorkflowExecutionStatus, execErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = status
	f.finishErr = execErr
	return nil
}

// failingRunner always fails; used to simulate a node failure.
type failingRunner struct{}

func (failingRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	return NodeResult{}, fmt.Errorf("boom")
}

// countingRunner succeeds and counts invocations, to assert retry counts.
type countingRunner struct {
	mu    sync.Mutex
	calls int
	failN int // fail this many times before succeeding
}

func (r *countingRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	r.mu.Lock()
	r.calls++
	calls := r.calls
	r.mu.Unlock()
	if calls <= r.failN {
		return NodeResult{}, fmt.Errorf("transient failure")
	}
	return NodeResult{}, nil
}

func falseFailWorkflow() *bool {
	b := false
	return &b
}

func TestEngine_Execute_ParallelBranchIsolation(t *testing.T) {
	graphJSON, err := json.Marshal(Graph{
		Nodes: []Node{
			{ID: "n1", Type: NodeTypeTrigger},
			{ID: "n2", Type: NodeTypeAction, FailWorkflow: falseFailWorkflow()},
			{ID: "n3", Type: NodeTypeAction},
		},
		Edges: []Edge{{From: "n1", To: "n2"}, {From: "n1", To: "n3"}},
	})
	require.NoError(t, err)

	store := newFakeExecutionStore()
	registry := NodeRegistry{
		NodeTypeTrigger: TriggerRunner{},
		// A single NodeType maps to one runner, so exercise both a failing
		// and a succeeding branch under NodeTypeAction via a node-id switch.
		NodeTypeAction: conditionalFailRunner{failNodeID: "n2"},
	}

	eng := New(store, registry, bus.NewMemoryBus(logger.Default()), logger.Default())
	wf := &domain.Workflow{ID: "wf1", OwnerID: "u1", Graph: graphJSON}

	exec, err := eng.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionSuccess, exec.Status)
	assert.Equal(t, domain.NodeFailed, store.nodes["n2"])
	assert.Equal(t, domain.NodeSuccess, store.nodes["n3"])
}

func TestEngine_Execute_FailWorkflowTrueFailsExecution(t *testing.T) {
	graphJSON, err := json.Marshal(Graph{
		Nodes: []Node{
			{ID: "n1", Type: NodeTypeTrigger},
			{ID: "n2", Type: NodeTypeAction}, // fail_workflow defaults true
		},
		Edges: []Edge{{From: "n1", To: "n2"}},
	})
	require.NoError(t, err)

	store := newFakeExecutionStore()
	registry := NodeRegistry{
		NodeTypeTrigger: TriggerRunner{},
		NodeTypeAction:  failingRunner{},
	}
	eng := New(store, registry, bus.NewMemoryBus(logger.Default()), logger.Default())
	wf := &domain.Workflow{ID: "wf1", OwnerID: "u1", Graph: graphJSON}

	exec, err := eng.Execute(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
}

func TestEngine_Execute_SkipsDownstreamOfFailedNode(t *testing.T) {
	graphJSON, err := json.Marshal(Graph{
		Nodes: []Node{
			{ID: "n1", Type: NodeTypeAction, FailWorkflow: falseFailWorkflow()},
			{ID: "n2", Type: NodeTypeAction},
		},
		Edges: []Edge{{From: "n1", To: "n2"}},
	})
	require.NoError(t, err)

	store := newFakeExecutionStore()
	registry := NodeRegistry{NodeTypeAction: failingRunner{}}
	eng := New(store, registry, bus.NewMemoryBus(logger.Default()), logger.Default())
	wf := &domain.Workflow{ID: "wf1", OwnerID: "u1", Graph: graphJSON}

	_, err = eng.Execute(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeFailed, store.nodes["n1"])
	assert.Equal(t, domain.NodeFailed, store.nodes["n2"])
}

func TestEngine_runNodeWithRetry_RetriesUpToMaxRetries(t *testing.T) {
	store := newFakeExecutionStore()
	runner := &countingRunner{failN: 2}
	registry := NodeRegistry{NodeTypeAction: runner}
	eng := New(store, registry, bus.NewMemoryBus(logger.Default()), logger.Default())

	_, err := eng.runNodeWithRetry(context.Background(), "exec-1", Node{ID: "n1", Type: NodeTypeAction, MaxRetries: 2}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
}

// conditionalFailRunner fails only for a specific node id, letting one test
// exercise both a failing and a succeeding branch under the same NodeType.
type conditionalFailRunner struct {
	failNodeID string
}

func (r conditionalFailRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	if in.Node.ID == r.failNodeID {
		return NodeResult{}, fmt.Errorf("boom")
	}
	return NodeResult{}, nil
}
