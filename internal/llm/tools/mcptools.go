// Package tools connects a PersonJob node's declared tool integrations to
// MCP (Model Context Protocol) servers, surfacing them as llm.ToolSpec
// values the provider can offer the model and dispatching the model's
// resulting tool calls back to the server that owns them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/llm"
)

// ServerConfig describes one stdio MCP server a diagram wires in through
// an IntegratedApi node's config.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string
}

// Registry connects lazily to each configured MCP server the first time
// one of its tools is needed, and routes calls back to the owning server.
type Registry struct {
	mu      sync.Mutex
	configs map[string]ServerConfig
	clients map[string]*client.Client
	tools   map[string]*mcp.Tool // tool name -> tool definition
	owner   map[string]string    // tool name -> server name
}

// NewRegistry returns an empty Registry; servers are registered with Add.
func NewRegistry() *Registry {
	return &Registry{
		configs: map[string]ServerConfig{},
		clients: map[string]*client.Client{},
		tools:   map[string]*mcp.Tool{},
		owner:   map[string]string{},
	}
}

// Add registers a server configuration without connecting to it.
func (r *Registry) Add(cfg ServerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
}

// ToolSpecs connects to every registered server (if not already connected)
// and returns the union of their exposed tools as provider-agnostic specs.
func (r *Registry) ToolSpecs(ctx context.Context) ([]llm.ToolSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var specs []llm.ToolSpec
	for name, cfg := range r.configs {
		if _, ok := r.clients[name]; !ok {
			if err := r.connect(ctx, cfg); err != nil {
				return nil, domainerr.NewIOError(name, "connecting to mcp server", err)
			}
		}
	}
	for toolName, t := range r.tools {
		specs = append(specs, llm.ToolSpec{
			Name:        toolName,
			Description: t.Description,
			Parameters:  convertSchema(t.InputSchema),
		})
	}
	return specs, nil
}

// connect must be called with r.mu held.
func (r *Registry) connect(ctx context.Context, cfg ServerConfig) error {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return fmt.Errorf("creating mcp client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("starting mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "dipeo", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initializing mcp client: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("listing mcp tools: %w", err)
	}

	filterSet := toSet(cfg.Filter)
	for i := range listResp.Tools {
		t := listResp.Tools[i]
		if filterSet != nil && !filterSet[t.Name] {
			continue
		}
		r.tools[t.Name] = &t
		r.owner[t.Name] = cfg.Name
	}
	r.clients[cfg.Name] = mcpClient
	return nil
}

// Call dispatches a model tool call to the MCP server that owns it,
// returning the tool's text result rendered as a string (the caller wraps
// it in an Envelope).
func (r *Registry) Call(ctx context.Context, toolName, argumentsJSON string) (string, error) {
	r.mu.Lock()
	serverName, ok := r.owner[toolName]
	if !ok {
		r.mu.Unlock()
		return "", domainerr.NewNotFoundError("tool", toolName)
	}
	mcpClient := r.clients[serverName]
	r.mu.Unlock()

	var args map[string]any
	if argumentsJSON != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return "", domainerr.NewIOError(toolName, "parsing tool call arguments", err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return "", domainerr.NewIOError(toolName, "calling mcp tool", err)
	}
	return renderResult(resp)
}

// Close tears down every connected server.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Close()
	}
	r.clients = map[string]*client.Client{}
}

func renderResult(resp *mcp.CallToolResult) (string, error) {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += "\n"
		}
		joined += t
	}
	if resp.IsError {
		return joined, domainerr.NewIOError("mcp tool call", joined, nil)
	}
	return joined, nil
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
