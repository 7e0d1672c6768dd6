package builtin

import (
	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/conversation"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/llm"
	"github.com/dipeo/dipeo/internal/llm/tools"
	"github.com/dipeo/dipeo/internal/scheduler/condition"
)

// Deps bundles the shared services the node-type handlers need, so the
// caller building a Registry only has to wire these once rather than
// threading each handler's constructor by hand.
type Deps struct {
	Conversation   *conversation.Conversation
	Router         *llm.Router
	MemorySelector conversation.Selector
	Tools          *tools.Registry
	MemoryCfg      config.MemoryConfig
	LLMCfg         config.LLMConfig

	// SubDiagramRunner lets a sub_diagram node recursively invoke diagram
	// execution. It is supplied by internal/engine at registry-construction
	// time, since this package cannot import the engine directly (the
	// engine imports handler/builtin for dispatch).
	SubDiagramRunner Runner
}

// NewRegistry builds a handler.Registry with every node type this module
// implements bound to its concrete handler.
func NewRegistry(deps Deps) *handler.Registry {
	reg := handler.NewRegistry()

	reg.Register(domain.NodeTypeStart, StartHandler{})
	reg.Register(domain.NodeTypeEndpoint, EndpointHandler{})
	reg.Register(domain.NodeTypeCondition, NewConditionHandler(condition.NewEvaluator()))
	reg.Register(domain.NodeTypeCode, NewCodeHandler())
	reg.Register(domain.NodeTypeDB, NewDBHandler())
	reg.Register(domain.NodeTypeApiJob, NewApiJobHandler())
	reg.Register(domain.NodeTypeTemplateJob, NewTemplateJobHandler())
	reg.Register(domain.NodeTypeIntegratedApi, NewIntegratedApiHandler(deps.Tools))
	reg.Register(domain.NodeTypeJSONSchemaValidator, NewJsonSchemaValidatorHandler())
	reg.Register(domain.NodeTypeDiffPatch, NewDiffPatchHandler())
	reg.Register(domain.NodeTypeSubDiagram, NewSubDiagramHandler(deps.SubDiagramRunner))
	reg.Register(domain.NodeTypeIrBuilder, NewIrBuilderHandler())
	reg.Register(domain.NodeTypeTypescriptAst, NewTypescriptAstHandler())
	reg.Register(domain.NodeTypeUserResponse, NewUserResponseHandler())
	reg.Register(domain.NodeTypeHook, NewHookHandler())
	reg.Register(domain.NodeTypePersonJob, NewPersonJobHandler(
		deps.Conversation,
		deps.Router,
		deps.MemorySelector,
		deps.Tools,
		deps.MemoryCfg,
		deps.LLMCfg,
	))

	return reg
}
