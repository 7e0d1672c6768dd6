package builtin

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// DBConfig is a db node's type-specific data. Only the file-backed
// sub_type is supported; collection/query target an external database
// this repo has no driver for.
type DBConfig struct {
	SubType   string         `json:"sub_type"`
	Operation string         `json:"operation"`
	File      string         `json:"file"`
	Keys      any            `json:"keys"`
	Data      map[string]any `json:"data"`
	Format    string         `json:"format"`
}

// DBHandler reads and writes the file backing a db node. It supports the
// four file operations the node type exposes: read, write, append, and
// update (merge keys into the existing document).
type DBHandler struct{}

func NewDBHandler() *DBHandler {
	return &DBHandler{}
}

func (h *DBHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[DBConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	if cfg.SubType != "" && cfg.SubType != "file" {
		return domain.Envelope{}, h.fail(req, "unsupported db sub_type "+cfg.SubType, nil)
	}
	if cfg.File == "" {
		return domain.Envelope{}, h.fail(req, "db node missing file path", nil)
	}
	format := cfg.Format
	if format == "" {
		format = "json"
	}

	switch cfg.Operation {
	case "read":
		return h.read(req, cfg.File, format)
	case "write":
		return h.write(req, cfg.File, format, cfg.Data, false)
	case "append":
		return h.write(req, cfg.File, format, cfg.Data, true)
	case "update":
		return h.update(req, cfg.File, format, cfg.Data)
	default:
		return domain.Envelope{}, h.fail(req, "unsupported db operation "+cfg.Operation, nil)
	}
}

func (h *DBHandler) read(req handler.Request, path, format string) (domain.Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "reading db file", err)
	}
	parsed, err := decode(raw, format)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "decoding db file", err)
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, parsed), nil
}

func (h *DBHandler) write(req handler.Request, path, format string, data map[string]any, appendMode bool) (domain.Envelope, error) {
	body := mergeInputData(req, data)
	if appendMode {
		if existing, err := os.ReadFile(path); err == nil {
			if prior, decErr := decode(existing, format); decErr == nil {
				if priorList, ok := prior.([]any); ok {
					body = map[string]any{"entries": append(priorList, body)}
				}
			}
		}
	}
	raw, err := encode(body, format)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "encoding db file", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return domain.Envelope{}, h.fail(req, "writing db file", err)
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, body), nil
}

func (h *DBHandler) update(req handler.Request, path, format string, data map[string]any) (domain.Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "reading db file", err)
	}
	parsed, err := decode(raw, format)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "decoding db file", err)
	}
	doc, ok := parsed.(map[string]any)
	if !ok {
		doc = map[string]any{}
	}
	for k, v := range mergeInputData(req, data) {
		doc[k] = v
	}
	encoded, err := encode(doc, format)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "encoding db file", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return domain.Envelope{}, h.fail(req, "writing db file", err)
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, doc), nil
}

func mergeInputData(req handler.Request, data map[string]any) map[string]any {
	body := map[string]any{}
	for k, v := range data {
		body[k] = v
	}
	if env, ok := req.DefaultInput(); ok {
		if inputBody, ok := env.Body.(map[string]any); ok {
			for k, v := range inputBody {
				body[k] = v
			}
		}
	}
	return body
}

func decode(raw []byte, format string) (any, error) {
	switch strings.ToLower(format) {
	case "yaml":
		var out any
		err := yaml.Unmarshal(raw, &out)
		return out, err
	case "text":
		return string(raw), nil
	default:
		var out any
		err := json.Unmarshal(raw, &out)
		return out, err
	}
}

func encode(body any, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml":
		return yaml.Marshal(body)
	case "text":
		if s, ok := body.(string); ok {
			return []byte(s), nil
		}
		return json.MarshalIndent(body, "", "  ")
	default:
		return json.MarshalIndent(body, "", "  ")
	}
}

func (h *DBHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
