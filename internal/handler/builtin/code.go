package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// CodeConfig is a code node's type-specific data: either an inline
// snippet or a path to a file, in one of a fixed set of supported
// languages. The interpreter receives the node's resolved inputs as a
// JSON object on stdin and is expected to print its single JSON result on
// stdout.
type CodeConfig struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	FilePath string `json:"file_path"`
	Timeout  int    `json:"timeout"`
}

var interpreterFor = map[string]string{
	"python":     "python3",
	"javascript": "node",
	"typescript": "node",
	"bash":       "bash",
}

// CodeHandler runs a node's inline or file-backed snippet as a subprocess
// in the declared language, the same way a CLI-invoked scripting step
// would be shelled out to in any Go service — there is no embedded
// scripting engine in the dependency set this repo draws from, so the
// interpreter itself does the parsing/execution; this handler only owns
// process plumbing (stdlib os/exec).
type CodeHandler struct {
	DefaultTimeout time.Duration
}

func NewCodeHandler() *CodeHandler {
	return &CodeHandler{DefaultTimeout: 30 * time.Second}
}

func (h *CodeHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[CodeConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	interpreter, ok := interpreterFor[strings.ToLower(cfg.Language)]
	if !ok {
		return domain.Envelope{}, h.fail(req, "unsupported code language "+cfg.Language, nil)
	}

	timeout := h.DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args []string
	if cfg.FilePath != "" {
		args = []string{cfg.FilePath}
	} else {
		args = []string{"-c", cfg.Code}
		if interpreter == "node" {
			args = []string{"-e", cfg.Code}
		}
	}

	inputBody := map[string]any{}
	for handleName, env := range req.Inputs {
		inputBody[handleName] = env.Body
	}
	stdin, err := json.Marshal(inputBody)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "marshaling code inputs", err)
	}

	cmd := exec.CommandContext(runCtx, interpreter, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Env = append(os.Environ(), "DIPEO_NODE_INPUT="+string(stdin))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return domain.Envelope{}, h.fail(req, "code execution failed: "+stderr.String(), err)
	}

	out := strings.TrimSpace(stdout.String())
	var parsed any
	if out == "" {
		parsed = map[string]any{}
	} else if jsonErr := json.Unmarshal([]byte(out), &parsed); jsonErr != nil {
		parsed = out
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, parsed), nil
}

func (h *CodeHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
