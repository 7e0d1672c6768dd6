package builtin

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// JsonSchemaValidatorConfig is a json_schema_validator node's type-specific
// data.
type JsonSchemaValidatorConfig struct {
	Schema    map[string]any `json:"schema"`
	SchemaRef string         `json:"schema_path"`
	Strict    bool           `json:"strict"`
}

// JsonSchemaValidatorHandler validates its default input against a JSON
// Schema document, either inline or loaded from disk.
type JsonSchemaValidatorHandler struct{}

func NewJsonSchemaValidatorHandler() *JsonSchemaValidatorHandler {
	return &JsonSchemaValidatorHandler{}
}

func (h *JsonSchemaValidatorHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[JsonSchemaValidatorConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	compiler := jsonschema.NewCompiler()
	const resourceURL = "inline.json"
	if cfg.Schema != nil {
		raw, err := json.Marshal(cfg.Schema)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "marshaling schema", err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return domain.Envelope{}, h.fail(req, "parsing schema", err)
		}
		if err := compiler.AddResource(resourceURL, doc); err != nil {
			return domain.Envelope{}, h.fail(req, "adding schema resource", err)
		}
	} else if cfg.SchemaRef != "" {
		schema, err := compiler.Compile(cfg.SchemaRef)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "loading schema file", err)
		}
		return h.validate(req, schema)
	} else {
		return domain.Envelope{}, h.fail(req, "json_schema_validator node missing schema", nil)
	}

	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "compiling schema", err)
	}
	return h.validate(req, schema)
}

func (h *JsonSchemaValidatorHandler) validate(req handler.Request, schema *jsonschema.Schema) (domain.Envelope, error) {
	env, ok := req.DefaultInput()
	if !ok {
		return domain.Envelope{}, h.fail(req, "json_schema_validator node has no input to validate", nil)
	}

	instance := normalizeForValidation(env.Body)
	if err := schema.Validate(instance); err != nil {
		return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
			"valid": false,
			"error": err.Error(),
		}), nil
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
		"valid": true,
		"data":  env.Body,
	}), nil
}

// normalizeForValidation round-trips through JSON so map[string]any values
// produced elsewhere in the pipeline match the any-typed shape the schema
// library expects from json.Unmarshal.
func normalizeForValidation(body any) any {
	raw, err := json.Marshal(body)
	if err != nil {
		return body
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return body
	}
	return out
}

func (h *JsonSchemaValidatorHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
