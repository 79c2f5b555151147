package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_TopologicalLayers_LinearChain(t *testing.T) {
	g := &Graph{
		Nodes: []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}
	layers, err := g.TopologicalLayers()
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, "a", layers[0][0].ID)
	assert.Equal(t, "b", layers[1][0].ID)
	assert.Equal(t, "c", layers[2][0].ID)
}

func TestGraph_TopologicalLayers_ParallelBranch(t *testing.T) {
	g := &Graph{
		Nodes: []Node{{ID: "n1"}, {ID: "n2"}, {ID: "n3"}},
		Edges: []Edge{{From: "n1", To: "n2"}, {From: "n1", To: "n3"}},
	}
	layers, err := g.TopologicalLayers()
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Len(t, layers[1], 2)
}

func TestGraph_TopologicalLayers_RejectsCycle(t *testing.T) {
	g := &Graph{
		Nodes: []Node{{ID: "a"}, {ID: "b"}},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	_, err := g.TopologicalLayers()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestNode_ShouldFailWorkflow_DefaultsTrue(t *testing.T) {
	assert.True(t, Node{}.ShouldFailWorkflow())
	f := false
	assert.False(t, Node{FailWorkflow: &f}.ShouldFailWorkflow())
}
