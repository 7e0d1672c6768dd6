package builtin

import (
	"context"
	"regexp"
	"strings"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// TypescriptAstConfig is a typescript_ast node's type-specific data. There
// is no TypeScript parser in this module's dependency set (the ecosystem
// ones are all JS-hosted), so extraction here is regex-based best effort
// over interface/type/enum declarations rather than a real AST walk; it
// covers the common top-level declaration shapes but not generics,
// nested namespaces, or decorators.
type TypescriptAstConfig struct {
	Source         string `json:"source"`
	TransformEnums bool   `json:"transform_enums"`
	FlattenOutput  bool   `json:"flatten_output"`
}

var (
	interfacePattern = regexp.MustCompile(`(?ms)^\s*(?:export\s+)?interface\s+(\w+)\s*(?:extends\s+[\w,\s]+)?\{([^}]*)\}`)
	typeAliasPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+)?type\s+(\w+)\s*=\s*(.+?);?\s*$`)
	enumPattern      = regexp.MustCompile(`(?ms)^\s*(?:export\s+)?enum\s+(\w+)\s*\{([^}]*)\}`)
	fieldPattern     = regexp.MustCompile(`(?m)^\s*(\w+)\??:\s*([^;,\n]+)`)
)

type TypescriptAstHandler struct{}

func NewTypescriptAstHandler() *TypescriptAstHandler {
	return &TypescriptAstHandler{}
}

func (h *TypescriptAstHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[TypescriptAstConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	source := cfg.Source
	if source == "" {
		if env, ok := req.DefaultInput(); ok {
			if s, ok := env.Body.(string); ok {
				source = s
			}
		}
	}
	if source == "" {
		return domain.Envelope{}, h.fail(req, "typescript_ast node has no source", nil)
	}

	interfaces := extractInterfaces(source)
	types := extractTypeAliases(source)
	enums := extractEnums(source, cfg.TransformEnums)

	if cfg.FlattenOutput {
		flat := map[string]any{}
		for name, fields := range interfaces {
			flat[name] = fields
		}
		for name, value := range types {
			flat[name] = value
		}
		for name, values := range enums {
			flat[name] = values
		}
		return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, flat), nil
	}

	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
		"interfaces": interfaces,
		"types":      types,
		"enums":      enums,
	}), nil
}

func extractInterfaces(source string) map[string]map[string]string {
	result := map[string]map[string]string{}
	for _, m := range interfacePattern.FindAllStringSubmatch(source, -1) {
		name, body := m[1], m[2]
		fields := map[string]string{}
		for _, f := range fieldPattern.FindAllStringSubmatch(body, -1) {
			fields[f[1]] = strings.TrimSpace(f[2])
		}
		result[name] = fields
	}
	return result
}

func extractTypeAliases(source string) map[string]string {
	result := map[string]string{}
	for _, m := range typeAliasPattern.FindAllStringSubmatch(source, -1) {
		result[m[1]] = strings.TrimSpace(m[2])
	}
	return result
}

func extractEnums(source string, transform bool) map[string][]string {
	result := map[string][]string{}
	for _, m := range enumPattern.FindAllStringSubmatch(source, -1) {
		name, body := m[1], m[2]
		var values []string
		for _, raw := range strings.Split(body, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if transform {
				if eq := strings.Index(raw, "="); eq >= 0 {
					raw = strings.TrimSpace(strings.Trim(raw[eq+1:], ` "'`))
				}
			}
			values = append(values, raw)
		}
		result[name] = values
	}
	return result
}

func (h *TypescriptAstHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
