package workflow

import "context"

// NodeInput is provided to a NodeRunner for one node execution.
type NodeInput struct {
	ExecutionID string
	Node        Node
	Data        map[string]any // shared workflow data bag, read-only snapshot
}

// NodeResult communicates a node's output and any data-bag writes back to
// the engine.
type NodeResult struct {
	Output    []byte
	DataPatch map[string]any
	Log       string
}

// NodeRunner executes one DAG node kind's side effect. Implemented per
// NodeType: trigger/tool/agent/condition/action (spec §4.9).
type NodeRunner interface {
	Execute(ctx context.Context, in NodeInput) (NodeResult, error)
}

// NodeRegistry resolves a NodeRunner for a NodeType, generalized from the
// teacher's engine.MapRegistry (ActionKind -> ActionCallback) to NodeType ->
// NodeRunner.
type NodeRegistry map[NodeType]NodeRunner

// Get resolves a runner by node type.
func (r NodeRegistry) Get(t NodeType) (NodeRunner, bool) {
	runner, ok := r[t]
	return runner, ok
}
