package envelope

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/dipeo/dipeo/internal/domainerr"
)

var (
	simpleVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	exprPattern      = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// Renderer expands {{variable}} and ${expression} placeholders in prompt
// and config strings against a Context. ${...} expressions are expanded
// first, then {{...}} placeholders in the resulting string.
type Renderer struct {
	// Strict rejects a template with an unresolvable placeholder instead
	// of leaving it in place; the built-in handlers (PersonJob, ApiJob,
	// TemplateJob) all render lenient.
	Strict bool
}

// Render expands every placeholder in s against ctx.
func (r Renderer) Render(s string, ctx Context) (string, error) {
	if !strings.Contains(s, "{{") && !strings.Contains(s, "${") {
		return s, nil
	}

	vars := ctx.Flatten()
	result := s

	for _, match := range exprPattern.FindAllStringSubmatch(result, -1) {
		placeholder, expression := match[0], strings.TrimSpace(match[1])
		value, err := expr.Eval(expression, vars)
		if err != nil {
			if r.Strict {
				return "", domainerr.NewValidationError("template", fmt.Sprintf("expression ${%s} failed: %v", expression, err))
			}
			continue
		}
		result = strings.Replace(result, placeholder, stringify(value), 1)
	}

	for _, match := range simpleVarPattern.FindAllStringSubmatch(result, -1) {
		placeholder, key := match[0], strings.TrimSpace(match[1])
		value, ok := lookup(vars, key)
		if !ok {
			if r.Strict {
				return "", domainerr.NewValidationError("template", fmt.Sprintf("unresolved variable {{%s}}", key))
			}
			continue
		}
		result = strings.Replace(result, placeholder, stringify(value), 1)
	}

	return result, nil
}

// lookup resolves a dotted path ("inputs.foo") against a flattened
// namespace, falling back to a plain key lookup.
func lookup(vars map[string]any, path string) (any, bool) {
	if v, ok := vars[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = vars
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
