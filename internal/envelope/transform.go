// Package envelope builds and transforms domain.Envelope values as they
// cross an edge: applying an edge's ordered TransformRule pipeline to a
// producing node's output before it reaches the target node's named
// input.
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dipeo/dipeo/internal/domain"
)

// Apply runs edge's transform rules over env in the fixed pipeline order
// and returns the resulting envelope. A rule that cannot apply to the
// current body (wrong shape, missing key) is skipped rather than erroring,
// matching the source model's can_apply/apply split.
func Apply(env domain.Envelope, edge *domain.Edge) domain.Envelope {
	for _, rule := range domain.OrderedTransformRules(edge.TransformRules) {
		env = applyRule(env, rule)
	}
	if edge.ContentType.IsValid() {
		env.ContentType = edge.ContentType
	}
	return env
}

func applyRule(env domain.Envelope, rule domain.TransformRule) domain.Envelope {
	switch rule.Kind {
	case domain.TransformExtractVariable:
		return extractVariable(env, rule.Config)
	case domain.TransformExtractToolResults:
		return extractToolResults(env, rule.Config)
	case domain.TransformFormat:
		return format(env, rule.Config)
	case domain.TransformContentTypeConv:
		return convertContentType(env, rule.Config)
	case domain.TransformBranchOn:
		return env // branching is resolved by the scheduler, not here
	case domain.TransformFormatForConvo:
		return formatForConversation(env)
	default:
		return env
	}
}

func extractVariable(env domain.Envelope, config any) domain.Envelope {
	key, ok := config.(string)
	if !ok {
		return env
	}
	m, ok := env.Body.(map[string]any)
	if !ok {
		return env
	}
	if v, ok := m[key]; ok {
		env.Body = v
	}
	return env
}

func extractToolResults(env domain.Envelope, config any) domain.Envelope {
	enabled, ok := config.(bool)
	if !ok || !enabled {
		return env
	}
	m, ok := env.Body.(map[string]any)
	if !ok {
		return env
	}
	if v, ok := m["tool_results"]; ok {
		env.Body = v
	}
	return env
}

func format(env domain.Envelope, config any) domain.Envelope {
	pattern, ok := config.(string)
	if !ok || !strings.Contains(pattern, "{") {
		return env
	}
	rendered := strings.ReplaceAll(pattern, "{value}", stringify(env.Body))
	env.Body = rendered
	env.Representations = cloneRepresentations(env.Representations)
	env.Representations["text"] = rendered
	return env
}

func convertContentType(env domain.Envelope, config any) domain.Envelope {
	var target domain.ContentType
	switch c := config.(type) {
	case domain.ContentType:
		target = c
	case string:
		target = domain.ContentType(c)
	default:
		return env
	}

	switch target {
	case domain.ContentObject:
		if s, ok := env.Body.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed != "" && (trimmed[0] == '{' || trimmed[0] == '[') {
				var parsed any
				if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
					env.Body = parsed
				}
			}
		}
	case domain.ContentRawText:
		if _, ok := env.Body.(string); !ok {
			env.Body = stringify(env.Body)
		}
	}
	return env
}

func formatForConversation(env domain.Envelope) domain.Envelope {
	if _, ok := env.Body.(string); ok {
		return env
	}
	text := stringify(env.Body)
	env.Representations = cloneRepresentations(env.Representations)
	env.Representations["text"] = text
	return env
}

// cloneRepresentations returns a copy of m independent of the caller's map,
// so writing a new representation here never mutates an envelope another
// goroutine (e.g. a sibling bindInputs call reading state.Envelopes) still
// holds a reference to.
func cloneRepresentations(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch b := v.(type) {
	case string:
		return b
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(b, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(b)
	default:
		out, err := json.Marshal(b)
		if err != nil {
			return fmt.Sprintf("%v", b)
		}
		return string(out)
	}
}
