package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCompiledDiagram_ShouldIndexNodesAndEdgesByAdjacency(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: NodeTypeStart},
		{ID: "b", Type: NodeTypeCode},
		{ID: "c", Type: NodeTypeEndpoint},
	}
	edges := []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
	}

	cd := NewCompiledDiagram("diag-1", nodes, edges, nil)

	n, ok := cd.Node("b")
	assert.True(t, ok)
	assert.Equal(t, NodeID("b"), n.ID)

	out := cd.OutgoingEdges("a")
	assert.Len(t, out, 1)
	assert.Equal(t, EdgeID("e1"), out[0].ID)

	in := cd.IncomingEdges("c")
	assert.Len(t, in, 1)
	assert.Equal(t, EdgeID("e2"), in[0].ID)
}

func TestNode_ShouldReturnFalse_WhenNodeNotFound(t *testing.T) {
	cd := NewCompiledDiagram("diag-1", nil, nil, nil)
	_, ok := cd.Node("missing")
	assert.False(t, ok)
}

func TestPersonByID_ShouldFindMatchingPerson(t *testing.T) {
	cd := NewCompiledDiagram("diag-1", nil, nil, []PersonSpec{
		{ID: "analyst", Name: "Analyst"},
		{ID: "critic", Name: "Critic"},
	})

	p, ok := cd.PersonByID("critic")
	assert.True(t, ok)
	assert.Equal(t, "Critic", p.Name)

	_, ok = cd.PersonByID("ghost")
	assert.False(t, ok)
}

func TestEndpointNodes_ShouldReturnOnlyEndpointTypeNodeIDs(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: NodeTypeStart},
		{ID: "b", Type: NodeTypeEndpoint},
		{ID: "c", Type: NodeTypeEndpoint},
	}
	cd := NewCompiledDiagram("diag-1", nodes, nil, nil)

	assert.ElementsMatch(t, []NodeID{"b", "c"}, cd.EndpointNodes())
}
