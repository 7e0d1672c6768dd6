package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// HookConfig is a hook node's type-specific data.
type HookConfig struct {
	HookType string `json:"hook_type"`
	Command  string `json:"command"`
	URL      string `json:"url"`
	Timeout  int    `json:"timeout"`
}

// HookHandler fires a shell command or a webhook at its point in the
// diagram, passing the node's default input along as JSON.
type HookHandler struct {
	client *http.Client
}

func NewHookHandler() *HookHandler {
	return &HookHandler{client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HookHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[HookConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]any{}
	if env, ok := req.DefaultInput(); ok {
		payload["input"] = env.Body
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "marshaling hook payload", err)
	}

	switch strings.ToLower(cfg.HookType) {
	case "shell", "":
		return h.runShell(runCtx, req, cfg.Command, payloadJSON)
	case "http", "webhook":
		return h.runHTTP(runCtx, req, cfg.URL, payloadJSON)
	default:
		return domain.Envelope{}, h.fail(req, "unsupported hook_type "+cfg.HookType, nil)
	}
}

func (h *HookHandler) runShell(runCtx context.Context, req handler.Request, command string, payload []byte) (domain.Envelope, error) {
	if command == "" {
		return domain.Envelope{}, h.fail(req, "hook node missing command", nil)
	}
	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return domain.Envelope{}, h.fail(req, "hook command failed: "+stderr.String(), err)
	}
	return domain.NewTextEnvelope(req.Node.ID, req.ExecutionID, strings.TrimSpace(stdout.String())), nil
}

func (h *HookHandler) runHTTP(ctx context.Context, req handler.Request, url string, payload []byte) (domain.Envelope, error) {
	if url == "" {
		return domain.Envelope{}, h.fail(req, "hook node missing url", nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Envelope{}, h.fail(req, "building hook request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "webhook request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "reading webhook response", err)
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}), nil
}

func (h *HookHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, true)
}
