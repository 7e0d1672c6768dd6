package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/envelope"
	"github.com/dipeo/dipeo/internal/handler"
)

// ApiJobConfig is an api_job node's type-specific data.
type ApiJobConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Body      any               `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timeout   int               `json:"timeout"`
	OutputKey string            `json:"output_key"`
}

// ApiJobHandler issues a templated HTTP request and reports its response
// as the node's output.
type ApiJobHandler struct {
	client   *http.Client
	renderer envelope.Renderer
}

func NewApiJobHandler() *ApiJobHandler {
	return &ApiJobHandler{
		client:   &http.Client{Timeout: 30 * time.Second},
		renderer: envelope.Renderer{Strict: false},
	}
}

func (h *ApiJobHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[ApiJobConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	if cfg.URL == "" {
		return domain.Envelope{}, h.fail(req, "api_job node missing url", nil)
	}
	method := cfg.Method
	if method == "" {
		method = "GET"
	}

	ectx := envelope.NewContext(req.State.Variables, inputVars(req), nil)
	url, err := h.renderer.Render(cfg.URL, ectx)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "rendering url", err)
	}

	var bodyReader io.Reader
	if cfg.Body != nil {
		switch v := cfg.Body.(type) {
		case string:
			rendered, err := h.renderer.Render(v, ectx)
			if err != nil {
				return domain.Envelope{}, h.fail(req, "rendering body", err)
			}
			bodyReader = bytes.NewReader([]byte(rendered))
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return domain.Envelope{}, h.fail(req, "marshaling body", err)
			}
			bodyReader = bytes.NewReader(raw)
		}
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(runCtx, method, url, bodyReader)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "building request", err)
	}
	for key, value := range cfg.Headers {
		rendered, err := h.renderer.Render(value, ectx)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "rendering header "+key, err)
		}
		httpReq.Header.Set(key, rendered)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "request failed", err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "reading response", err)
	}

	var parsedBody any
	if jsonErr := json.Unmarshal(respBody, &parsedBody); jsonErr != nil {
		parsedBody = string(respBody)
	}

	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsedBody,
		"latency_ms":  latency.Milliseconds(),
	}), nil
}

func inputVars(req handler.Request) map[string]any {
	vars := map[string]any{}
	for handleName, env := range req.Inputs {
		vars[handleName] = env.Body
		if body, ok := env.Body.(map[string]any); ok {
			for k, v := range body {
				vars[k] = v
			}
		}
	}
	return vars
}

func (h *ApiJobHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, true)
}
