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

// Package router implements the Request Router (spec §4.5.4): namespaced
// dispatch of tools/call to either an internal handler or a connected
// external session, HIGH-security-tool HIL gating, and routing metadata.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/altairalabs/mcpagg/internal/aggregator/server"
	"github.com/altairalabs/mcpagg/internal/aggregator/session"
	"github.com/altairalabs/mcpagg/internal/hil"
	"github.com/altairalabs/mcpagg/internal/protocol"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// InternalHandler dispatches a non-namespaced tool call to an in-process
// registration module.
type InternalHandler interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Metadata is the routing envelope wrapped around every tools/call result,
// per spec §4.5.4.
type Metadata struct {
	RoutedTo        string
	RoutingTimeMS   int64
	ExecutionTimeMS int64
}

// Result is a tool call's outcome plus its routing metadata.
type Result struct {
	CallResult *mcp.CallToolResult
	Metadata   Metadata
}

// toolLookup is the narrow slice of *postgres.ToolRepo the router needs for
// its security-level check, split out so tests can exercise the org/global
// scoping fallback without a database.
type toolLookup interface {
	GetByName(ctx context.Context, name string, orgID *string) (*postgres.Tool, error)
}

// Router dispatches tools/call requests.
type Router struct {
	servers         *server.Registry
	toolRepo        toolLookup
	internal        InternalHandler
	hil             *hil.Orchestrator
	degradedTimeout time.Duration
	logger          logr.Logger
}

// New builds a Router.
func New(servers *server.Registry, toolRepo *postgres.ToolRepo, internal InternalHandler, h *hil.Orchestrator, degradedTimeout time.Duration, logger logr.Logger) *Router {
	return &Router{servers: servers, toolRepo: toolRepo, internal: internal, hil: h, degradedTimeout: degradedTimeout, logger: logger.WithName("router")}
}

// CallTool resolves and dispatches name per spec §4.5.4's three-step
// algorithm, gating HIGH-security tools behind a HIL grant. orgID scopes the
// security-level lookup to the caller's tenant (spec §3.1/§8 tenant
// isolation): an org-scoped tool must be visible to its own org, not just
// the global scope.
func (r *Router) CallTool(ctx context.Context, userID, orgID, name string, args map[string]any) (*Result, error) {
	routeStart := time.Now()

	tool, err := r.lookupTool(ctx, orgID, name)
	if err == nil && tool.SecurityLevel == postgres.SecurityHigh {
		resp, err := r.hil.CheckGate(ctx, userID, name, args, tool.SecurityLevel)
		if err != nil {
			return nil, fmt.Errorf("router: hil gate: %w", err)
		}
		if resp != nil {
			return nil, protocol.AuthorizationRequired(resp.RequestID, string(resp.HILType), resp.Options)
		}
	}

	serverName, originalName, external := splitNamespaced(name)
	routingTime := time.Since(routeStart).Milliseconds()

	if external {
		return r.callExternal(ctx, serverName, originalName, args, routingTime)
	}

	execStart := time.Now()
	result, err := r.internal.CallTool(ctx, name, args)
	execTime := time.Since(execStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("router: internal tool %q: %w", name, err)
	}
	return &Result{
		CallResult: result,
		Metadata:   Metadata{RoutedTo: "internal", RoutingTimeMS: routingTime, ExecutionTimeMS: execTime},
	}, nil
}

// lookupTool resolves name's catalog record for the security-level check.
// It tries the caller's org scope first (when orgID is set) and falls back
// to the global scope, since a name lookup with no scope hint must still
// find a global tool for an org-scoped caller.
func (r *Router) lookupTool(ctx context.Context, orgID, name string) (*postgres.Tool, error) {
	if orgID != "" {
		if tool, err := r.toolRepo.GetByName(ctx, name, &orgID); err == nil {
			return tool, nil
		}
	}
	return r.toolRepo.GetByName(ctx, name, nil)
}

func (r *Router) callExternal(ctx context.Context, serverName, originalName string, args map[string]any, routingTimeMS int64) (*Result, error) {
	servers, err := r.servers.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("router: list servers: %w", err)
	}
	var target *postgres.ExternalServer
	for _, s := range servers {
		if s.Name == serverName {
			target = s
			break
		}
	}
	if target == nil {
		return nil, protocol.ServerUnavailable(serverName)
	}

	sess, ok := r.servers.Session(target.ID)
	if !ok {
		return nil, protocol.ServerUnavailable(serverName)
	}

	callCtx := ctx
	switch target.Status {
	case postgres.ServerConnected:
		// full timeout inherited from caller context.
	case postgres.ServerDegraded:
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.degradedTimeout)
		defer cancel()
	default:
		return nil, protocol.ServerUnavailable(serverName)
	}

	execStart := time.Now()
	result, err := sess.CallTool(callCtx, originalName, args)
	execTime := time.Since(execStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("router: external tool %s.%s: %w", serverName, originalName, err)
	}

	return &Result{
		CallResult: result,
		Metadata:   Metadata{RoutedTo: serverName, RoutingTimeMS: routingTimeMS, ExecutionTimeMS: execTime},
	}, nil
}

// splitNamespaced splits "server.tool" into (server, tool, true), or
// ("", name, false) when name carries no namespace dot, per spec §4.5.4
// step 1.
func splitNamespaced(name string) (serverName, originalName string, external bool) {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return "", name, false
	}
	return name[:idx], name[idx+1:], true
}
