/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package internaltools is the process's own tool/prompt/resource module:
// the "internally defined tools, prompts, and resources" spec §1(a) refers
// to, and the authority sync_internal (spec §4.1) scans. It satisfies both
// router.InternalHandler (dispatch) and sync.InternalSource (discovery).
package internaltools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/sync"
)

// ToolFunc executes one internal tool's business logic.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool bundles a descriptor with its handler.
type Tool struct {
	Descriptor sync.ToolDescriptor
	Handler    ToolFunc
}

// Module is the in-process registration surface: the Go equivalent of the
// `register_<module>(server)` auto-discovery hook spec §6 describes for the
// `*_tools.py`-pattern files, wired explicitly at startup instead of scanned
// from the filesystem.
type Module struct {
	tools     map[string]Tool
	prompts   []sync.PromptDescriptor
	resources []sync.ResourceDescriptor
}

// New builds an empty Module.
func New() *Module {
	return &Module{tools: make(map[string]Tool)}
}

// RegisterTool adds one internal tool.
func (m *Module) RegisterTool(t Tool) {
	m.tools[t.Descriptor.OriginalName] = t
}

// CallTool implements router.InternalHandler.
func (m *Module) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("internaltools: unknown tool %q", name)
	}
	text, err := t.Handler(ctx, args)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		}, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
}

// ListTools implements sync.Lister/sync.InternalSource.
func (m *Module) ListTools(_ context.Context) ([]sync.ToolDescriptor, error) {
	out := make([]sync.ToolDescriptor, 0, len(m.tools))
	for _, t := range m.tools {
		out = append(out, t.Descriptor)
	}
	return out, nil
}

// ListPrompts implements sync.Lister/sync.InternalSource.
func (m *Module) ListPrompts(_ context.Context) ([]sync.PromptDescriptor, error) {
	return m.prompts, nil
}

// ListResources implements sync.Lister/sync.InternalSource.
func (m *Module) ListResources(_ context.Context) ([]sync.ResourceDescriptor, error) {
	return m.resources, nil
}

// Builtins returns the Module the server registers at startup: a LOW-security
// echo tool for connectivity checks and a HIGH-security shell-execute tool
// that exercises the HIL authorization gate (spec §4.7, testable scenario 5).
func Builtins() *Module {
	m := New()

	m.RegisterTool(Tool{
		Descriptor: sync.ToolDescriptor{
			OriginalName: "echo",
			Description:  "Echoes the provided message back to the caller.",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
			Category:     "utility",
			Security:     postgres.SecurityLow,
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "echo: " + msg, nil
		},
	})

	m.RegisterTool(Tool{
		Descriptor: sync.ToolDescriptor{
			OriginalName: "bash_execute",
			Description:  "Executes a shell command and returns its combined output. Requires authorization.",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
			Category:     "system",
			Security:     postgres.SecurityHigh,
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			if command == "" {
				return "", fmt.Errorf("internaltools: bash_execute requires a non-empty command")
			}
			out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
			if err != nil {
				return "", fmt.Errorf("internaltools: bash_execute: %w", err)
			}
			return string(out), nil
		},
	})

	return m
}
