package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
)

func stateWith(diagramID string, nodeStates map[domain.NodeID]domain.NodeState) *domain.ExecutionState {
	st := domain.NewExecutionState("exec-1", diagramID)
	for id, ns := range nodeStates {
		st.NodeStates[id] = ns
	}
	return st
}

func completed(id domain.NodeID, seq int) domain.NodeState {
	return domain.NodeState{NodeID: id, Status: domain.NodeStatusCompleted, CompletedAtSeq: seq}
}

func pending(id domain.NodeID) domain.NodeState {
	return domain.NodeState{NodeID: id, Status: domain.NodeStatusPending}
}

func boolEnvelope(conditionID domain.NodeID, result bool) domain.Envelope {
	return domain.NewObjectEnvelope(conditionID, "exec-1", map[string]any{"result": result})
}

func TestReadyNodes_ShouldOrderByTypePriority_WhenMultipleNodesReady(t *testing.T) {
	nodes := []domain.Node{
		{ID: "code1", Type: domain.NodeTypeCode},
		{ID: "start1", Type: domain.NodeTypeStart},
		{ID: "person1", Type: domain.NodeTypePersonJob},
		{ID: "cond1", Type: domain.NodeTypeCondition},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, nil, nil)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"code1":   pending("code1"),
		"start1":  pending("start1"),
		"person1": pending("person1"),
		"cond1":   pending("cond1"),
	})

	s := New()
	ready := s.ReadyNodes(diagram, state)

	require.Equal(t, []domain.NodeID{"start1", "cond1", "person1", "code1"}, ready)
}

func TestNextBatch_ShouldCapAtMaxParallel(t *testing.T) {
	nodes := []domain.Node{
		{ID: "a", Type: domain.NodeTypeCode},
		{ID: "b", Type: domain.NodeTypeCode},
		{ID: "c", Type: domain.NodeTypeCode},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, nil, nil)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"a": pending("a"), "b": pending("b"), "c": pending("c"),
	})

	s := New()
	batch := s.NextBatch(diagram, state, 2)
	assert.Len(t, batch, 2)
}

func TestIsReady_ShouldRequireAllPlainDependencies_WhenNodeHasMultipleIncoming(t *testing.T) {
	nodes := []domain.Node{
		{ID: "a", Type: domain.NodeTypeCode},
		{ID: "b", Type: domain.NodeTypeCode},
		{ID: "join", Type: domain.NodeTypeCode},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "a", Target: "join", SourceOutput: "default", TargetInput: "a", ContentType: domain.ContentObject},
		{ID: "e2", Source: "b", Target: "join", SourceOutput: "default", TargetInput: "b", ContentType: domain.ContentObject},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)

	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"a":    completed("a", 1),
		"b":    pending("b"),
		"join": pending("join"),
	})
	s := New()
	assert.False(t, s.isReady(&nodes[2], diagram, state), "join should wait for b")

	state.NodeStates["b"] = completed("b", 2)
	assert.True(t, s.isReady(&nodes[2], diagram, state))
}

func TestIsReady_ShouldFireCondition_WhenAnyIncomingEdgeSatisfied(t *testing.T) {
	nodes := []domain.Node{
		{ID: "a", Type: domain.NodeTypeCode},
		{ID: "b", Type: domain.NodeTypeCode},
		{ID: "cond", Type: domain.NodeTypeCondition},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "a", Target: "cond", SourceOutput: "default", TargetInput: "a", ContentType: domain.ContentObject},
		{ID: "e2", Source: "b", Target: "cond", SourceOutput: "default", TargetInput: "b", ContentType: domain.ContentObject},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"a":    completed("a", 1),
		"b":    pending("b"),
		"cond": pending("cond"),
	})

	s := New()
	assert.True(t, s.isReady(&nodes[2], diagram, state))
}

func TestIsReady_ShouldRequireActiveBranch_WhenIncomingEdgeIsConditional(t *testing.T) {
	nodes := []domain.Node{
		{ID: "cond", Type: domain.NodeTypeCondition},
		{ID: "onTrue", Type: domain.NodeTypeCode},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "cond", Target: "onTrue", SourceOutput: string(domain.BranchTrue), TargetInput: "default", ContentType: domain.ContentObject},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)

	falseEnv := boolEnvelope("cond", false)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"cond":   completed("cond", 1),
		"onTrue": pending("onTrue"),
	})
	state.Envelopes[domain.EnvelopeKey("cond", "default")] = falseEnv

	s := New()
	assert.False(t, s.isReady(&nodes[1], diagram, state), "onTrue should not fire when condition took the false branch")

	state.Envelopes[domain.EnvelopeKey("cond", "default")] = boolEnvelope("cond", true)
	assert.True(t, s.isReady(&nodes[1], diagram, state))
}

func TestIsReady_ShouldRespectMaxIteration_WhenNodeIsPersonJob(t *testing.T) {
	node := domain.Node{ID: "p1", Type: domain.NodeTypePersonJob, Data: map[string]any{"max_iteration": 2}}
	diagram := domain.NewCompiledDiagram("d1", []domain.Node{node}, nil, nil)

	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"p1": {NodeID: "p1", Status: domain.NodeStatusPending, ExecutionCount: 2},
	})
	s := New()
	assert.False(t, s.isReady(&node, diagram, state), "already ran max_iteration times")

	state.NodeStates["p1"] = domain.NodeState{NodeID: "p1", Status: domain.NodeStatusPending, ExecutionCount: 1}
	assert.True(t, s.isReady(&node, diagram, state))
}

func TestHasPendingHigherPrioritySiblings_ShouldBlock_WhenHigherPrioritySiblingStillPending(t *testing.T) {
	nodes := []domain.Node{
		{ID: "src", Type: domain.NodeTypeCode},
		{ID: "low", Type: domain.NodeTypeCode},
		{ID: "high", Type: domain.NodeTypeCode},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "src", Target: "low", SourceOutput: "default", TargetInput: "default", ContentType: domain.ContentObject, ExecutionPriority: 0},
		{ID: "e2", Source: "src", Target: "high", SourceOutput: "default", TargetInput: "default", ContentType: domain.ContentObject, ExecutionPriority: 5},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"src":  completed("src", 1),
		"low":  pending("low"),
		"high": pending("high"),
	})

	s := New()
	assert.False(t, s.isReady(&nodes[1], diagram, state), "low must wait for the higher-priority sibling")

	state.NodeStates["high"] = completed("high", 2)
	assert.True(t, s.isReady(&nodes[1], diagram, state))
}

func TestShouldTerminate_ShouldReturnTrue_WhenEveryEndpointSettled(t *testing.T) {
	nodes := []domain.Node{
		{ID: "e1", Type: domain.NodeTypeEndpoint},
		{ID: "e2", Type: domain.NodeTypeEndpoint},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, nil, nil)

	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"e1": completed("e1", 1),
		"e2": pending("e2"),
	})
	s := New()
	assert.False(t, s.ShouldTerminate(diagram, state))

	state.NodeStates["e2"] = domain.NodeState{NodeID: "e2", Status: domain.NodeStatusSkipped}
	assert.True(t, s.ShouldTerminate(diagram, state))
}

func TestShouldTerminate_ShouldReturnFalse_WhenDiagramHasNoEndpoints(t *testing.T) {
	nodes := []domain.Node{{ID: "a", Type: domain.NodeTypeCode}}
	diagram := domain.NewCompiledDiagram("d1", nodes, nil, nil)
	state := domain.NewExecutionState("exec-1", "d1")

	s := New()
	assert.False(t, s.ShouldTerminate(diagram, state))
}

func TestBranchSkipTargets_ShouldReturnInactiveBranchTargets_WhenConditionCompleted(t *testing.T) {
	nodes := []domain.Node{
		{ID: "cond", Type: domain.NodeTypeCondition},
		{ID: "onTrue", Type: domain.NodeTypeCode},
		{ID: "onFalse", Type: domain.NodeTypeCode},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "cond", Target: "onTrue", SourceOutput: string(domain.BranchTrue), TargetInput: "default", ContentType: domain.ContentObject},
		{ID: "e2", Source: "cond", Target: "onFalse", SourceOutput: string(domain.BranchFalse), TargetInput: "default", ContentType: domain.ContentObject},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)
	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"cond":    completed("cond", 1),
		"onTrue":  pending("onTrue"),
		"onFalse": pending("onFalse"),
	})
	state.Envelopes[domain.EnvelopeKey("cond", "default")] = boolEnvelope("cond", true)

	s := New()
	skip := s.BranchSkipTargets(diagram, state, "cond")
	assert.Equal(t, []domain.NodeID{"onFalse"}, skip)
}

func TestLoopReady_ShouldReturnTrue_WhenDependencyCompletedAfterNodesOwnCompletion(t *testing.T) {
	nodes := []domain.Node{
		{ID: "loopSrc", Type: domain.NodeTypeCode},
		{ID: "loopBody", Type: domain.NodeTypePersonJob, Data: map[string]any{"max_iteration": 5}},
	}
	edges := []domain.Edge{
		{ID: "e1", Source: "loopSrc", Target: "loopBody", SourceOutput: "default", TargetInput: "default", ContentType: domain.ContentObject},
	}
	diagram := domain.NewCompiledDiagram("d1", nodes, edges, nil)

	state := stateWith("d1", map[domain.NodeID]domain.NodeState{
		"loopSrc":  completed("loopSrc", 1),
		"loopBody": completed("loopBody", 2),
	})
	s := New()
	assert.False(t, s.LoopReady(diagram, state, "loopBody"), "loopSrc has not rerun since loopBody completed")

	state.NodeStates["loopSrc"] = completed("loopSrc", 3)
	assert.True(t, s.LoopReady(diagram, state, "loopBody"))
}
