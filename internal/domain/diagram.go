package domain

// Arrow is a declared directed connection between two handles in the
// source diagram, prior to compilation into an Edge.
type Arrow struct {
	ID NodeID
	// SourceHandle and TargetHandle are raw handle references as authored,
	// e.g. "node123:output" or "node123" (defaulting to the node's sole
	// output/input). The compiler resolves these into (NodeID, label).
	SourceHandle string
	TargetHandle string
	// ContentTypeHint is the explicit arrow-level content type override,
	// if present in the source diagram.
	ContentTypeHint ContentType
	// Data carries optional per-arrow configuration: extract_variable,
	// format string, condition branch tag, etc. (spec §4.1 step 3).
	Data map[string]any
	// Priority is this arrow's execution_priority among siblings sharing a
	// source node (default 0).
	Priority int
	// Label, if present, names the target input explicitly.
	Label string
}

// PersonSpec is a Person's declaration within a diagram's persons catalog.
type PersonSpec struct {
	ID         PersonID
	Name       string
	Service    string
	Model      string
	ApiKeyID   ApiKeyID
	SystemPrompt string
	PromptFile   string
}

// Diagram is the uncompiled, source-level representation of a workflow:
// nodes, arrows, a persons catalog, and free-form metadata.
type Diagram struct {
	ID       string
	Nodes    []Node
	Arrows   []Arrow
	Persons  []PersonSpec
	Metadata map[string]any
}

// NodeByID returns the node with the given id, if present.
func (d *Diagram) NodeByID(id NodeID) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}
