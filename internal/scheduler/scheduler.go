// Package scheduler computes, for a compiled diagram and the current
// execution state, which nodes are ready to run on this tick. It holds no
// state of its own: every exported function is a pure read over its
// arguments, so the engine can call it freely from its single-threaded
// tick loop without synchronization.
package scheduler

import (
	"sort"

	"github.com/dipeo/dipeo/internal/domain"
)

// Scheduler computes per-tick readiness over a fixed diagram topology.
type Scheduler struct{}

// New returns a Scheduler. It carries no configuration; max_parallel is
// supplied per call since it is an engine-level, not a scheduler-level,
// concern.
func New() *Scheduler {
	return &Scheduler{}
}

// NextBatch returns up to maxParallel ready node ids, ordered by the fixed
// type-priority (Start, then Condition, then PersonJob, then everything
// else) so a tick with multiple candidates behaves deterministically.
func (s *Scheduler) NextBatch(diagram *domain.CompiledDiagram, state *domain.ExecutionState, maxParallel int) []domain.NodeID {
	ready := s.ReadyNodes(diagram, state)
	if len(ready) > maxParallel {
		ready = ready[:maxParallel]
	}
	return ready
}

// ReadyNodes returns every node id ready for execution this tick, in
// priority order.
func (s *Scheduler) ReadyNodes(diagram *domain.CompiledDiagram, state *domain.ExecutionState) []domain.NodeID {
	var ready []domain.NodeID
	for i := range diagram.Nodes {
		n := &diagram.Nodes[i]
		if s.isReady(n, diagram, state) {
			ready = append(ready, n.ID)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		ni, _ := diagram.Node(ready[i])
		nj, _ := diagram.Node(ready[j])
		return typePriority(ni.Type) < typePriority(nj.Type)
	})
	return ready
}

// ShouldTerminate reports whether the execution has reached a natural end:
// every Endpoint node has either completed or been skipped.
func (s *Scheduler) ShouldTerminate(diagram *domain.CompiledDiagram, state *domain.ExecutionState) bool {
	endpoints := diagram.EndpointNodes()
	if len(endpoints) == 0 {
		return false
	}
	for _, id := range endpoints {
		st := state.NodeStateOf(id).Status
		if st != domain.NodeStatusCompleted && st != domain.NodeStatusSkipped {
			return false
		}
	}
	return true
}

func typePriority(t domain.NodeType) int {
	switch t {
	case domain.NodeTypeStart:
		return 0
	case domain.NodeTypeCondition:
		return 1
	case domain.NodeTypePersonJob:
		return 2
	default:
		return 3
	}
}

func (s *Scheduler) isReady(node *domain.Node, diagram *domain.CompiledDiagram, state *domain.ExecutionState) bool {
	ns := state.NodeStateOf(node.ID)
	if ns.Status != domain.NodeStatusPending {
		return false
	}

	if !s.withinLoopBound(node, ns) {
		return false
	}

	incoming := diagram.IncomingEdges(node.ID)
	if len(incoming) == 0 {
		return true
	}

	if !s.dependenciesSatisfied(node, incoming, diagram, state) {
		return false
	}

	if s.hasPendingHigherPrioritySiblings(node.ID, incoming, diagram, state) {
		return false
	}

	return true
}

// withinLoopBound enforces a PersonJob node's max_iteration config; all
// other node types have no iteration limit beyond their single completion.
func (s *Scheduler) withinLoopBound(node *domain.Node, ns domain.NodeState) bool {
	if node.Type != domain.NodeTypePersonJob {
		return true
	}
	return ns.ExecutionCount < MaxIteration(node)
}

// MaxIteration reads a PersonJob node's configured max_iteration, the
// loop bound the scheduler and engine both enforce; every other node
// type is treated as uncapped by callers of this function.
func MaxIteration(node *domain.Node) int {
	maxIter := 1
	if v, ok := node.Data["max_iteration"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			maxIter = n
		}
	}
	return maxIter
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// dependenciesSatisfied applies the two dependency rules: a Condition node
// fires when ANY incoming dependency is satisfied; every other node type
// requires ALL non-conditional dependencies plus the active branch of each
// incoming condition group.
func (s *Scheduler) dependenciesSatisfied(node *domain.Node, incoming []*domain.Edge, diagram *domain.CompiledDiagram, state *domain.ExecutionState) bool {
	if node.Type == domain.NodeTypeCondition {
		for _, e := range incoming {
			if s.edgeSatisfied(e, diagram, state) {
				return true
			}
		}
		return false
	}

	var conditional, plain []*domain.Edge
	for _, e := range incoming {
		if e.IsBranch() {
			conditional = append(conditional, e)
		} else {
			plain = append(plain, e)
		}
	}

	for _, e := range plain {
		if !s.edgeSatisfied(e, diagram, state) {
			return false
		}
	}

	byCondition := map[domain.NodeID][]*domain.Edge{}
	for _, e := range conditional {
		byCondition[e.Source] = append(byCondition[e.Source], e)
	}
	for conditionID, edges := range byCondition {
		sourceStatus := state.NodeStateOf(conditionID).Status
		if sourceStatus == domain.NodeStatusPending {
			return false
		}
		satisfied := false
		for _, e := range edges {
			if s.edgeSatisfied(e, diagram, state) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}

	return true
}

// edgeSatisfied reports whether an incoming edge's source has produced
// data this node may consume: the source must be Completed or
// MaxIterReached, and if the edge is a condition branch, that branch must
// be the one the condition actually took.
func (s *Scheduler) edgeSatisfied(e *domain.Edge, diagram *domain.CompiledDiagram, state *domain.ExecutionState) bool {
	sourceStatus := state.NodeStateOf(e.Source).Status
	if sourceStatus != domain.NodeStatusCompleted && sourceStatus != domain.NodeStatusMaxIterReached {
		return false
	}
	if !e.IsBranch() {
		return true
	}
	branch, ok := ActiveBranch(state, e.Source)
	if !ok {
		return false
	}
	return e.SourceOutput == string(branch)
}

// ActiveBranch returns the branch a Condition node took, derived from its
// last produced envelope's boolean result.
func ActiveBranch(state *domain.ExecutionState, conditionID domain.NodeID) (domain.BranchLabel, bool) {
	env, ok := state.Envelopes[domain.EnvelopeKey(conditionID, "default")]
	if !ok {
		return "", false
	}
	result, ok := boolResult(env)
	if !ok {
		return "", false
	}
	if result {
		return domain.BranchTrue, true
	}
	return domain.BranchFalse, true
}

func boolResult(env domain.Envelope) (bool, bool) {
	switch body := env.Body.(type) {
	case bool:
		return body, true
	case map[string]any:
		if v, ok := body["result"].(bool); ok {
			return v, true
		}
	}
	return false, false
}

// hasPendingHigherPrioritySiblings implements the sibling-priority rule: a
// node must wait if a higher-execution_priority edge sharing one of its
// sources still targets a pending sibling.
func (s *Scheduler) hasPendingHigherPrioritySiblings(nodeID domain.NodeID, incoming []*domain.Edge, diagram *domain.CompiledDiagram, state *domain.ExecutionState) bool {
	for _, in := range incoming {
		siblings := diagram.OutgoingEdges(in.Source)
		for _, sib := range siblings {
			if sib.Target == nodeID {
				continue
			}
			if sib.ExecutionPriority > in.ExecutionPriority {
				if state.NodeStateOf(sib.Target).Status == domain.NodeStatusPending {
					return true
				}
			}
		}
	}
	return false
}

// LoopReady reports whether a Completed node's dependencies have been
// satisfied again since its own last completion: the signal the engine
// uses to transition a looping node back to Pending. Comparing
// CompletedAtSeq against its dependencies' own CompletedAtSeq
// distinguishes a genuine new loop iteration (a cycle edge's source
// reran after this node last completed) from an ordinary convergent
// edge that was already accounted for the first time this node ran.
func (s *Scheduler) LoopReady(diagram *domain.CompiledDiagram, state *domain.ExecutionState, nodeID domain.NodeID) bool {
	node, ok := diagram.Node(nodeID)
	if !ok {
		return false
	}
	ns := state.NodeStateOf(nodeID)
	if ns.Status != domain.NodeStatusCompleted {
		return false
	}
	incoming := diagram.IncomingEdges(nodeID)
	if len(incoming) == 0 {
		return false
	}
	if !s.dependenciesSatisfied(node, incoming, diagram, state) {
		return false
	}
	if s.hasPendingHigherPrioritySiblings(nodeID, incoming, diagram, state) {
		return false
	}
	maxSourceSeq := 0
	for _, e := range incoming {
		if seq := state.NodeStateOf(e.Source).CompletedAtSeq; seq > maxSourceSeq {
			maxSourceSeq = seq
		}
	}
	return maxSourceSeq > ns.CompletedAtSeq
}

// BranchSkipTargets returns the node ids that should be marked Skipped
// because they sit on the branch a just-completed Condition node did not
// take. The engine raises a NodeCompleted(Skipped) event for each.
func (s *Scheduler) BranchSkipTargets(diagram *domain.CompiledDiagram, state *domain.ExecutionState, conditionID domain.NodeID) []domain.NodeID {
	branch, ok := ActiveBranch(state, conditionID)
	if !ok {
		return nil
	}
	inactive := domain.BranchFalse
	if branch == domain.BranchFalse {
		inactive = domain.BranchTrue
	}
	var skip []domain.NodeID
	for _, e := range diagram.OutgoingEdges(conditionID) {
		if e.SourceOutput == string(inactive) && state.NodeStateOf(e.Target).Status == domain.NodeStatusPending {
			skip = append(skip, e.Target)
		}
	}
	return skip
}
