package compiler

import "github.com/dipeo/dipeo/internal/domain"

// inferContentType derives an edge's content type when the source arrow did
// not pin one explicitly: PersonJob nodes emit conversation state, DB/Code/
// ApiJob/IntegratedApi nodes emit structured objects, everything else emits
// raw text.
func inferContentType(sourceType domain.NodeType) domain.ContentType {
	switch sourceType {
	case domain.NodeTypePersonJob:
		return domain.ContentConversation
	case domain.NodeTypeDB, domain.NodeTypeCode, domain.NodeTypeApiJob, domain.NodeTypeIntegratedApi:
		return domain.ContentObject
	default:
		return domain.ContentRawText
	}
}

// buildTransformRules derives the ordered transform-rule list for one
// arrow from its raw data payload and the (source, target) node types.
func buildTransformRules(arrow *domain.Arrow, source, target domain.NodeType) []domain.TransformRule {
	var rules []domain.TransformRule

	if v, ok := arrow.Data["extract_variable"]; ok {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformExtractVariable, Config: v})
	}
	if v, ok := arrow.Data["extract_tool_results"]; ok {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformExtractToolResults, Config: v})
	}
	if v, ok := arrow.Data["format"]; ok {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformFormat, Config: v})
	}
	if arrow.ContentTypeHint.IsValid() {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformContentTypeConv, Config: arrow.ContentTypeHint})
	}
	if v, ok := arrow.Data["branch_on"]; ok {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformBranchOn, Config: v})
	}
	if source == domain.NodeTypeDB && target == domain.NodeTypePersonJob {
		rules = append(rules, domain.TransformRule{Kind: domain.TransformFormatForConvo, Config: true})
	}

	return domain.OrderedTransformRules(rules)
}
