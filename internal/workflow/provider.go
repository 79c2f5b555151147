package workflow

import (
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// Deps bundles the node-runner dependencies Provide wires into a fresh
// Engine (spec §4.9: tool/agent nodes reuse C4/C6 as execution primitives).
type Deps struct {
	Store    ExecutionStore
	Tools    ToolInvoker
	Agents   AgentDispatcher
	EventBus bus.EventBus
	Log      *logger.Logger
}

// Provide builds the Engine and its built-in NodeRegistry (trigger/action/
// condition always available; tool/agent registered only when their
// dependency is supplied, so the engine still runs DAGs that don't use
// them in a deployment without a tool registry or task runner wired up).
func Provide(d Deps) *Engine {
	registry := NodeRegistry{
		NodeTypeTrigger:   TriggerRunner{},
		NodeTypeAction:    ActionRunner{},
		NodeTypeCondition: ConditionRunner{},
	}
	if d.Tools != nil {
		registry[NodeTypeTool] = ToolRunner{Tools: d.Tools}
	}
	if d.Agents != nil {
		registry[NodeTypeAgent] = AgentRunner{Runner: d.Agents}
	}
	return New(d.Store, registry, d.EventBus, d.Log)
}
