package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/taskrunner"
	"github.com/orchcore/orchcore/internal/tools"
)

// TriggerRunner implements a trigger node: a no-op entry point that marks
// the DAG's start, matching the teacher's on_enter step semantics.
type TriggerRunner struct{}

func (TriggerRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	return NodeResult{}, nil
}

// ActionRunner implements an action node: writes a set of key/value pairs
// into the workflow data bag, generalized from the teacher's
// SetWorkflowDataAction.
type ActionRunner struct{}

type actionConfig struct {
	Set map[string]any `json:"set"`
}

func (ActionRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	var cfg actionConfig
	if len(in.Node.Config) > 0 {
		if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
			return NodeResult{}, fmt.Errorf("action node %s: %w", in.Node.ID, err)
		}
	}
	return NodeResult{DataPatch: cfg.Set}, nil
}

// ConditionRunner implements a condition node: fails (halting its
// downstream branch) unless Data[Key] == Equals.
type ConditionRunner struct{}

type conditionConfig struct {
	Key    string `json:"key"`
	Equals any    `json:"equals"`
}

func (ConditionRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	var cfg conditionConfig
	if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
		return NodeResult{}, fmt.Errorf("condition node %s: %w", in.Node.ID, err)
	}
	actual, ok := in.Data[cfg.Key]
	if !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", cfg.Equals) {
		return NodeResult{}, fmt.Errorf("condition node %s: %s != %v", in.Node.ID, cfg.Key, cfg.Equals)
	}
	return NodeResult{}, nil
}

// ToolInvoker is the subset of C4's Registry the tool node needs.
type ToolInvoker interface {
	InvokeAll(ctx context.Context, calls []tools.Call) []tools.Result
}

// ToolRunner implements a tool node: invokes one registered tool call.
type ToolRunner struct {
	Tools ToolInvoker
}

type toolConfig struct {
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
}

func (r ToolRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	var cfg toolConfig
	if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
		return NodeResult{}, fmt.Errorf("tool node %s: %w", in.Node.ID, err)
	}
	results := r.Tools.InvokeAll(ctx, []tools.Call{{ToolName: cfg.ToolName, ToolCallID: in.Node.ID, Args: cfg.Args}})
	if len(results) == 0 {
		return NodeResult{}, fmt.Errorf("tool node %s: no result", in.Node.ID)
	}
	res := results[0]
	if res.Err != nil {
		return NodeResult{Log: res.Content}, res.Err
	}
	return NodeResult{Output: []byte(res.Content), Log: res.Content}, nil
}

// AgentDispatcher is the subset of C6's Runner the agent node needs.
type AgentDispatcher interface {
	Execute(ctx context.Context, p taskrunner.TaskParams) (taskrunner.Result, error)
}

// AgentRunner implements an agent node: dispatches execute_agent_task with
// RunTrigger "workflow", using C5/C6 as the per-node execution primitive
// (spec §4.9: "C9 uses C5/C6 as the per-node execution primitive").
type AgentRunner struct {
	Runner AgentDispatcher
}

type agentConfig struct {
	AgentID      string `json:"agent_id"`
	TaskOverride string `json:"task_override,omitempty"`
}

func (r AgentRunner) Execute(ctx context.Context, in NodeInput) (NodeResult, error) {
	var cfg agentConfig
	if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
		return NodeResult{}, fmt.Errorf("agent node %s: %w", in.Node.ID, err)
	}
	if cfg.AgentID == "" {
		return NodeResult{}, fmt.Errorf("agent node %s: missing agent_id", in.Node.ID)
	}
	res, err := r.Runner.Execute(ctx, taskrunner.TaskParams{
		AgentID:      cfg.AgentID,
		Trigger:      domain.TriggerWorkflow,
		TaskOverride: cfg.TaskOverride,
	})
	if err != nil {
		return NodeResult{}, err
	}
	out, _ := json.Marshal(res)
	return NodeResult{Output: out}, nil
}
