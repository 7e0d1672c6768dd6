package domain

// CompiledDiagram is the output of the Compiler: an ordered set of typed
// nodes and edges with adjacency indices, ready for the scheduler and
// engine to drive. It is immutable after compilation.
type CompiledDiagram struct {
	ID      string
	Nodes   []Node
	Edges   []Edge
	Persons []PersonSpec

	nodeByID map[NodeID]*Node
	outgoing map[NodeID][]*Edge
	incoming map[NodeID][]*Edge
}

// NewCompiledDiagram builds adjacency indices over nodes and edges. Callers
// (the compiler) are expected to have already validated handle references.
func NewCompiledDiagram(id string, nodes []Node, edges []Edge, persons []PersonSpec) *CompiledDiagram {
	cd := &CompiledDiagram{
		ID:       id,
		Nodes:    nodes,
		Edges:    edges,
		Persons:  persons,
		nodeByID: make(map[NodeID]*Node, len(nodes)),
		outgoing: make(map[NodeID][]*Edge),
		incoming: make(map[NodeID][]*Edge),
	}
	for i := range cd.Nodes {
		n := &cd.Nodes[i]
		cd.nodeByID[n.ID] = n
	}
	for i := range cd.Edges {
		e := &cd.Edges[i]
		cd.outgoing[e.Source] = append(cd.outgoing[e.Source], e)
		cd.incoming[e.Target] = append(cd.incoming[e.Target], e)
	}
	return cd
}

// Node returns the node with the given id.
func (cd *CompiledDiagram) Node(id NodeID) (*Node, bool) {
	n, ok := cd.nodeByID[id]
	return n, ok
}

// OutgoingEdges returns edges whose source is id, in no particular order.
func (cd *CompiledDiagram) OutgoingEdges(id NodeID) []*Edge {
	return cd.outgoing[id]
}

// IncomingEdges returns edges whose target is id, in no particular order.
func (cd *CompiledDiagram) IncomingEdges(id NodeID) []*Edge {
	return cd.incoming[id]
}

// PersonByID looks up a person's static spec from the diagram's catalog.
func (cd *CompiledDiagram) PersonByID(id PersonID) (*PersonSpec, bool) {
	for i := range cd.Persons {
		if cd.Persons[i].ID == id {
			return &cd.Persons[i], true
		}
	}
	return nil, false
}

// EndpointNodes returns all nodes of type NodeTypeEndpoint.
func (cd *CompiledDiagram) EndpointNodes() []NodeID {
	var out []NodeID
	for i := range cd.Nodes {
		if cd.Nodes[i].Type == NodeTypeEndpoint {
			out = append(out, cd.Nodes[i].ID)
		}
	}
	return out
}
