package domain

// TransformRuleKind is the closed set of transform rule kinds an Edge may
// carry, applied in this fixed order during input resolution (spec §4.4).
type TransformRuleKind string

const (
	TransformExtractVariable    TransformRuleKind = "extract_variable"
	TransformExtractToolResults TransformRuleKind = "extract_tool_results"
	TransformFormat             TransformRuleKind = "format"
	TransformContentTypeConv    TransformRuleKind = "content_type_conversion"
	TransformBranchOn           TransformRuleKind = "branch_on"
	TransformFormatForConvo     TransformRuleKind = "format_for_conversation"
)

// transformRuleOrder is the fixed application order from spec §4.4/§4.6.
var transformRuleOrder = []TransformRuleKind{
	TransformExtractVariable,
	TransformExtractToolResults,
	TransformFormat,
	TransformContentTypeConv,
	TransformBranchOn,
	TransformFormatForConvo,
}

// TransformRule pairs a rule kind with its configuration value (a format
// string, a variable key, a target content type, etc).
type TransformRule struct {
	Kind   TransformRuleKind
	Config any
}

// OrderedTransformRules returns rules sorted into the fixed pipeline order,
// skipping kinds not present in rules.
func OrderedTransformRules(rules []TransformRule) []TransformRule {
	byKind := make(map[TransformRuleKind]TransformRule, len(rules))
	for _, r := range rules {
		byKind[r.Kind] = r
	}
	ordered := make([]TransformRule, 0, len(rules))
	for _, k := range transformRuleOrder {
		if r, ok := byKind[k]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

// BranchLabel names an outgoing handle of a Condition node.
type BranchLabel string

const (
	BranchTrue  BranchLabel = "condtrue"
	BranchFalse BranchLabel = "condfalse"
)

// Edge is a compiled, typed connection between two nodes. Edges are
// immutable once a CompiledDiagram exists.
type Edge struct {
	ID     EdgeID
	Source NodeID
	Target NodeID

	// SourceOutput and TargetInput are the resolved handle labels, e.g.
	// "default", "condtrue", or a named output/input.
	SourceOutput string
	TargetInput  string

	ContentType    ContentType
	TransformRules []TransformRule

	// IsConditional is true iff SourceOutput is a BranchLabel or the
	// source arrow data explicitly marked the edge conditional.
	IsConditional bool

	// FirstExecutionOnly marks an edge that only carries data on a node's
	// first iteration (used by looping PersonJob nodes).
	FirstExecutionOnly bool

	ExecutionPriority int
	Metadata          map[string]any
}

// IsBranch reports whether SourceOutput names a condition branch.
func (e *Edge) IsBranch() bool {
	return e.SourceOutput == string(BranchTrue) || e.SourceOutput == string(BranchFalse)
}
