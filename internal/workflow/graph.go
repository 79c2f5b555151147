// Package workflow implements the Workflow Execution Engine (C9): a DAG-of-
// nodes runner. Grounded on the teacher's internal/workflow/engine package
// (StepSpec compilation, a typed Action/callback-dispatch idiom, idempotent
// operation application), generalized from a linear kanban-step sequence to
// a DAG with Kahn's-algorithm topological ordering and parallel branches.
package workflow

import (
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of DAG node kinds (spec §4.9).
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeTool      NodeType = "tool"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
)

// Node is one DAG vertex as stored in Workflow.Graph JSON.
type Node struct {
	ID           string          `json:"id"`
	Type         NodeType        `json:"type"`
	Config       json.RawMessage `json:"config,omitempty"`
	FailWorkflow *bool           `json:"fail_workflow,omitempty"` // default true
	MaxRetries   int             `json:"max_retries,omitempty"`   // default 0
}

// ShouldFailWorkflow reports whether this node's failure should mark the
// whole execution failed (spec §4.9: "policy per node: fail_workflow
// default true").
func (n Node) ShouldFailWorkflow() bool {
	if n.FailWorkflow == nil {
		return true
	}
	return *n.FailWorkflow
}

// Edge is one directed DAG edge.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the parsed shape of Workflow.Graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ParseGraph decodes a Workflow's graph column.
func ParseGraph(raw json.RawMessage) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse workflow graph: %w", err)
	}
	return &g, nil
}

// ErrCycle is returned when a graph contains a cycle (spec §4.9: "no
// cycles (rejected on save)").
var ErrCycle = fmt.Errorf("workflow graph contains a cycle")

// TopologicalLayers computes the DAG's topological order grouped into
// "layers" of mutually-independent nodes via Kahn's algorithm: each layer
// holds every node whose predecessors are entirely in prior layers, so
// nodes within one layer may execute in parallel (spec §4.9: "parallel
// branches run concurrently"). Returns ErrCycle if the graph is not a DAG.
func (g *Graph) TopologicalLayers() ([][]Node, error) {
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	indegree := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	var layers [][]Node
	remaining := len(g.Nodes)
	current := readyNodes(g.Nodes, indegree)

	for len(current) > 0 {
		layers = append(layers, current)
		remaining -= len(current)

		var next []Node
		for _, n := range current {
			for _, to := range adj[n.ID] {
				indegree[to]--
				if indegree[to] == 0 {
					next = append(next, byID[to])
				}
			}
		}
		current = next
	}

	if remaining > 0 {
		return nil, ErrCycle
	}
	return layers, nil
}

func readyNodes(nodes []Node, indegree map[string]int) []Node {
	var ready []Node
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n)
		}
	}
	return ready
}

// Predecessors returns the set of node ids with an edge into nodeID.
func (g *Graph) Predecessors(nodeID string) []string {
	var preds []string
	for _, e := range g.Edges {
		if e.To == nodeID {
			preds = append(preds, e.From)
		}
	}
	return preds
}
