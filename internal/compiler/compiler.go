// Package compiler turns a source-level domain.Diagram into a
// domain.CompiledDiagram: it validates node types and id uniqueness,
// resolves arrow handle references into typed edges, derives each edge's
// content type and transform-rule pipeline, and resolves PersonJob prompt
// files. Per-type connection counts (domain.NodeType.MinInputs/MinOutputs)
// are not checked.
//
// Compilation never mutates the input Diagram's nodes in place except to
// attach resolved_prompt/resolved_first_prompt entries to PersonJob Data
// maps, matching the "resolve once, never touch disk again" rule handlers
// rely on at execution time.
package compiler

import (
	"fmt"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

// Options configures one Compile call.
type Options struct {
	// DiagramDir is the directory the source diagram file lives in, used
	// for diagram-relative prompt file resolution. Empty for diagrams
	// built programmatically rather than loaded from disk.
	DiagramDir string
	// BaseDir roots prompt resolution when a path isn't diagram-relative.
	BaseDir string
}

// Compile validates d and, if it passes, returns the derived
// CompiledDiagram. On validation failure it returns every error found
// rather than stopping at the first, so callers can report a complete
// diagnostic list.
func Compile(d *domain.Diagram, opts Options) (*domain.CompiledDiagram, []error) {
	var errs []error

	nodeByID := make(map[domain.NodeID]*domain.Node, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if !n.Type.IsValid() {
			errs = append(errs, domainerr.NewCompileError(d.ID, string(n.ID), "type", fmt.Sprintf("unknown node type %q", n.Type)))
			continue
		}
		if _, dup := nodeByID[n.ID]; dup {
			errs = append(errs, domainerr.NewCompileError(d.ID, string(n.ID), "id", "duplicate node id"))
			continue
		}
		nodeByID[n.ID] = n
	}

	if len(d.Nodes) == 0 {
		errs = append(errs, domainerr.NewCompileError(d.ID, "", "nodes", "diagram must have at least one node"))
	}

	resolver := NewPromptResolver(opts.BaseDir)
	if promptErrs := resolver.ResolvePromptFiles(d.Nodes, opts.DiagramDir); len(promptErrs) > 0 {
		errs = append(errs, promptErrs...)
	}

	edges := make([]domain.Edge, 0, len(d.Arrows))
	for i := range d.Arrows {
		arrow := &d.Arrows[i]
		edge, arrowErrs := buildEdge(d.ID, arrow, nodeByID)
		errs = append(errs, arrowErrs...)
		if edge != nil {
			edges = append(edges, *edge)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return domain.NewCompiledDiagram(d.ID, d.Nodes, edges, d.Persons), nil
}

func buildEdge(diagramID string, arrow *domain.Arrow, nodeByID map[domain.NodeID]*domain.Node) (*domain.Edge, []error) {
	var errs []error

	sourceID, sourceLabel := parseHandle(arrow.SourceHandle)
	targetID, targetLabel := parseHandle(arrow.TargetHandle)

	sourceNode, ok := nodeByID[sourceID]
	if !ok {
		errs = append(errs, domainerr.NewCompileError(diagramID, string(sourceID), "source", fmt.Sprintf("arrow %s references unknown source node", arrow.ID)))
	}
	targetNode, ok2 := nodeByID[targetID]
	if !ok2 {
		errs = append(errs, domainerr.NewCompileError(diagramID, string(targetID), "target", fmt.Sprintf("arrow %s references unknown target node", arrow.ID)))
	}
	if len(errs) > 0 {
		return nil, errs
	}

	contentType := arrow.ContentTypeHint
	if !contentType.IsValid() {
		contentType = inferContentType(sourceNode.Type)
	}

	isConditional := sourceNode.Type == domain.NodeTypeCondition &&
		(sourceLabel == string(domain.BranchTrue) || sourceLabel == string(domain.BranchFalse))
	if v, ok := arrow.Data["is_conditional"].(bool); ok && v {
		isConditional = true
	}

	firstExecutionOnly := false
	if v, ok := arrow.Data["requires_first_execution"].(bool); ok && v {
		firstExecutionOnly = true
	}

	// An explicit label overrides the parsed target handle, matching the
	// editor's "rename this input" affordance.
	if arrow.Label != "" {
		targetLabel = arrow.Label
	}

	edge := &domain.Edge{
		ID:                 domain.EdgeID(arrow.ID),
		Source:             sourceID,
		Target:             targetID,
		SourceOutput:       sourceLabel,
		TargetInput:        targetLabel,
		ContentType:        contentType,
		TransformRules:     buildTransformRules(arrow, sourceNode.Type, targetNode.Type),
		IsConditional:      isConditional,
		FirstExecutionOnly: firstExecutionOnly,
		ExecutionPriority:  arrow.Priority,
		Metadata: map[string]any{
			"source_type": sourceNode.Type,
			"target_type": targetNode.Type,
		},
	}

	return edge, nil
}
