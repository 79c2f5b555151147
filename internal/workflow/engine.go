package workflow

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// ExecutionStore is the subset of C1's WorkflowRepository the engine needs
// to persist execution/node state.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, workflowID, ownerID string, nodeIDs []string) (*domain.WorkflowExecution, error)
	UpdateNodeState(ctx context.Context, executionID, nodeID string, status domain.NodeExecutionStatus, output []byte, nodeErr string) error
	FinishExecution(ctx context.Context, executionID string, status domain.WorkflowExecutionStatus, execErr string) error
}

// Engine runs a Workflow's DAG to completion (spec §4.9).
type Engine struct {
	store    ExecutionStore
	registry NodeRegistry
	bus      bus.EventBus
	log      *logger.Logger
}

// New constructs an Engine.
func New(store ExecutionStore, registry NodeRegistry, eventBus bus.EventBus, log *logger.Logger) *Engine {
	return &Engine{store: store, registry: registry, bus: eventBus, log: log.WithFields(zap.String("component", "workflow_engine"))}
}

// nodeOutcome tracks one node's execution result within a run, used to
// decide which downstream nodes to skip and whether the overall execution
// fails.
type nodeOutcome struct {
	failed       bool
	failWorkflow bool
}

// Execute runs wf's DAG from owner's perspective, persisting a new
// WorkflowExecution and per-node NodeExecutionState rows, publishing
// NODE_STATE/NODE_LOG as nodes run and EXECUTION_FINISHED on completion.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow) (*domain.WorkflowExecution, error) {
	graph, err := ParseGraph(wf.Graph)
	if err != nil {
		return nil, err
	}
	layers, err := graph.TopologicalLayers()
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]string, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	exec, err := e.store.CreateExecution(ctx, wf.ID, wf.OwnerID, nodeIDs)
	if err != nil {
		return nil, err
	}

	var (
		mu          sync.Mutex
		data        = map[string]any{}
		outcomes    = map[string]nodeOutcome{}
		overallFail bool
	)

	for _, layer := range layers {
		g, gctx := errgroup.WithContext(ctx)
		for _, n := range layer {
			n := n
			g.Go(func() error {
				if skip := e.predecessorFailed(graph, n.ID, outcomes, &mu); skip {
					e.markSkipped(ctx, exec.ID, n)
					mu.Lock()
					outcomes[n.ID] = nodeOutcome{failed: true, failWorkflow: n.ShouldFailWorkflow()}
					mu.Unlock()
					return nil
				}

				mu.Lock()
				snapshot := maps.Clone(data)
				mu.Unlock()

				res, nodeErr := e.runNodeWithRetry(gctx, exec.ID, n, snapshot)

				mu.Lock()
				if nodeErr == nil {
					maps.Copy(data, res.DataPatch)
					outcomes[n.ID] = nodeOutcome{}
				} else {
					outcomes[n.ID] = nodeOutcome{failed: true, failWorkflow: n.ShouldFailWorkflow()}
				}
				mu.Unlock()
				return nil // per-node errors are isolated; never abort sibling nodes
			})
		}
		_ = g.Wait() // goroutines never return an error themselves
	}

	for _, o := range outcomes {
		if o.failed && o.failWorkflow {
			overallFail = true
		}
	}

	status := domain.ExecutionSuccess
	execErr := ""
	if overallFail {
		status = domain.ExecutionFailed
		execErr = "one or more nodes failed"
	}
	if err := e.store.FinishExecution(ctx, exec.ID, status, execErr); err != nil {
		e.log.Error("finish workflow execution failed", zap.String("execution_id", exec.ID), zap.Error(err))
	}
	e.publish(ctx, events.ExecutionFinished, events.PayloadExecutionFinished{
		ExecutionID: exec.ID,
		Status:      string(status),
		DurationMs:  time.Since(exec.StartedAt).Milliseconds(),
		Error:       execErr,
	})

	exec.Status = status
	exec.Error = execErr
	return exec, nil
}

// predecessorFailed reports whether any direct predecessor of nodeID has
// already failed, meaning nodeID's inputs are unavailable and it must be
// skipped rather than executed.
func (e *Engine) predecessorFailed(g *Graph, nodeID string, outcomes map[string]nodeOutcome, mu *sync.Mutex) bool {
	mu.Lock()
	defer mu.Unlock()
	for _, predID := range g.Predecessors(nodeID) {
		if o, ok := outcomes[predID]; ok && o.failed {
			return true
		}
	}
	return false
}

func (e *Engine) markSkipped(ctx context.Context, executionID string, n Node) {
	const skipErr = "skipped: upstream node failed"
	if err := e.store.UpdateNodeState(ctx, executionID, n.ID, domain.NodeFailed, nil, skipErr); err != nil {
		e.log.Error("mark node skipped failed", zap.String("node_id", n.ID), zap.Error(err))
	}
	e.publish(ctx, events.NodeState, events.PayloadNode{ExecutionID: executionID, NodeID: n.ID, Status: string(domain.NodeFailed), Error: skipErr})
}

// runNodeWithRetry executes one node, retrying up to n.MaxRetries times on
// failure (spec §4.9: "Retries are per-node with explicit max_retries").
func (e *Engine) runNodeWithRetry(ctx context.Context, executionID string, n Node, data map[string]any) (NodeResult, error) {
	e.setNodeRunning(ctx, executionID, n.ID)

	runner, ok := e.registry.Get(n.Type)
	if !ok {
		err := fmt.Errorf("unknown node type: %s", n.Type)
		e.finishNode(ctx, executionID, n.ID, NodeResult{}, err)
		return NodeResult{}, err
	}

	var (
		res NodeResult
		err error
	)
	attempts := n.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		res, err = runner.Execute(ctx, NodeInput{ExecutionID: executionID, Node: n, Data: data})
		if err == nil {
			break
		}
	}

	e.finishNode(ctx, executionID, n.ID, res, err)
	return res, err
}

func (e *Engine) setNodeRunning(ctx context.Context, executionID, nodeID string) {
	if err := e.store.UpdateNodeState(ctx, executionID, nodeID, domain.NodeRunning, nil, ""); err != nil {
		e.log.Error("set node running failed", zap.String("node_id", nodeID), zap.Error(err))
	}
	e.publish(ctx, events.NodeState, events.PayloadNode{ExecutionID: executionID, NodeID: nodeID, Status: string(domain.NodeRunning)})
}

func (e *Engine) finishNode(ctx context.Context, executionID, nodeID string, res NodeResult, nodeErr error) {
	status := domain.NodeSuccess
	errText := ""
	if nodeErr != nil {
		status = domain.NodeFailed
		errText = nodeErr.Error()
	}
	if err := e.store.UpdateNodeState(ctx, executionID, nodeID, status, res.Output, errText); err != nil {
		e.log.Error("finish node failed", zap.String("node_id", nodeID), zap.Error(err))
	}
	e.publish(ctx, events.NodeState, events.PayloadNode{ExecutionID: executionID, NodeID: nodeID, Status: string(status), Error: errText})
	if res.Log != "" {
		e.publish(ctx, events.NodeLog, events.PayloadNode{ExecutionID: executionID, NodeID: nodeID, Text: res.Log})
	}
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, data any) {
	if err := e.bus.Publish(ctx, &events.Event{Kind: kind, Data: data}); err != nil {
		e.log.Error("publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

