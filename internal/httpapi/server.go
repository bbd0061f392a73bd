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

// Package httpapi is the Protocol Layer (spec §4.9/§6): MCP JSON-RPC 2.0 on
// /mcp with Accept-negotiated JSON or SSE responses, plus the auxiliary
// REST surface (health, search, progress streaming, aggregator and skills
// management).
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/aggregator/router"
	"github.com/altairalabs/mcpagg/internal/aggregator/server"
	"github.com/altairalabs/mcpagg/internal/hil"
	"github.com/altairalabs/mcpagg/internal/httputil"
	"github.com/altairalabs/mcpagg/internal/progress"
	"github.com/altairalabs/mcpagg/internal/protocol"
	"github.com/altairalabs/mcpagg/internal/registry"
	"github.com/altairalabs/mcpagg/internal/search"
	"github.com/altairalabs/mcpagg/internal/skills"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/sync"
)

// Server bundles every component the HTTP surface dispatches into.
type Server struct {
	reg      *registry.Registry
	servers  *server.Registry
	router   *router.Router
	searchE  *search.Engine
	skillCat *skills.Catalog
	hilOrch  *hil.Orchestrator
	progress *progress.Service
	syncP    *sync.Pipeline
	auth     *Authenticator
	wsHub    *StatusHub
	logger   logr.Logger
}

// Deps groups Server's constructor dependencies.
type Deps struct {
	Registry *registry.Registry
	Servers  *server.Registry
	Router   *router.Router
	Search   *search.Engine
	Skills   *skills.Catalog
	HIL      *hil.Orchestrator
	Progress *progress.Service
	Sync     *sync.Pipeline
	Auth     *Authenticator
	WSHub    *StatusHub
	Logger   logr.Logger
}

// New builds a Server.
func New(d Deps) *Server {
	return &Server{
		reg: d.Registry, servers: d.Servers, router: d.Router, searchE: d.Search,
		skillCat: d.Skills, hilOrch: d.HIL, progress: d.Progress, syncP: d.Sync,
		auth: d.Auth, wsHub: d.WSHub, logger: d.Logger.WithName("httpapi"),
	}
}

// Handler builds the full routed http.Handler, mirroring the teacher's
// bare http.ServeMux + middleware-wrap pattern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/mcp", s.authed(s.handleMCP))
	mux.Handle("/search", s.authed(s.handleSearch))
	mux.Handle("/progress/", s.authed(s.handleProgressStream))

	mux.Handle("/api/v1/aggregator/servers", s.authed(s.handleAggregatorServers))
	mux.Handle("/api/v1/aggregator/servers/", s.authed(s.handleAggregatorServerByID))

	mux.Handle("/api/v1/skills", s.authed(s.handleSkills))
	mux.Handle("/api/v1/skills/", s.authed(s.handleSkillByID))

	mux.Handle("/api/v1/hil/", s.authed(s.handleHILDecide))

	if s.wsHub != nil {
		mux.Handle("/ws/aggregator", s.authed(s.wsHub.ServeHTTP))
	}

	return mux
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

// handleHealth reports liveness plus which capability kinds the server
// exposes, as boolean flags; it does not count catalog records.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"capabilities": map[string]any{"tools": true, "prompts": true, "resources": true},
	})
}

// handleMCP implements the JSON-RPC 2.0 envelope over HTTP with the
// Accept: application/json, text/event-stream negotiation from spec §4.9.
// mcpagg's methods (tools/list, tools/call, ...) are single-response, so a
// streaming Accept header yields one `data: <json>` frame rather than an
// incremental sequence.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, false, nil, protocol.NewError(protocol.CodeInvalidParams, "malformed request body", nil))
		return
	}

	resp := s.dispatch(r.Context(), req)
	wantsSSE := acceptsSSE(r.Header.Get("Accept"))
	writeRPCResponse(w, wantsSSE, *resp)
}

func (s *Server) dispatch(ctx context.Context, req protocol.Request) *protocol.Response {
	switch req.Method {
	case "ping":
		return protocol.NewResult(req.ID, map[string]any{"pong": true})
	case "tools/list":
		tools, err := s.reg.ListTools(ctx, OrgID(ctx), 200, 0)
		if err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternal, err.Error(), nil))
		}
		return protocol.NewResult(req.ID, map[string]any{"tools": tools})
	case "prompts/list":
		prompts, err := s.reg.ListPrompts(ctx, OrgID(ctx), 200, 0)
		if err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternal, err.Error(), nil))
		}
		return protocol.NewResult(req.ID, map[string]any{"prompts": prompts})
	case "prompts/get":
		return s.dispatchPromptGet(ctx, req)
	case "resources/list":
		resources, err := s.reg.ListResources(ctx, OrgID(ctx), 200, 0)
		if err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternal, err.Error(), nil))
		}
		return protocol.NewResult(req.ID, map[string]any{"resources": resources})
	case "resources/read":
		return s.dispatchResourceRead(ctx, req)
	case "tools/call":
		return s.dispatchToolCall(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil))
	}
}

func (s *Server) dispatchToolCall(ctx context.Context, req protocol.Request) *protocol.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	raw, err := json.Marshal(req.Params)
	if err != nil || json.Unmarshal(raw, &params) != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidParams, "invalid tools/call params", nil))
	}

	result, err := s.router.CallTool(ctx, UserID(ctx), OrgID(ctx), params.Name, params.Arguments)
	if err != nil {
		if rpcErr, ok := err.(*protocol.Error); ok {
			return protocol.NewErrorResponse(req.ID, rpcErr)
		}
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternal, err.Error(), nil))
	}
	return protocol.NewResult(req.ID, map[string]any{
		"result":            result.CallResult,
		"routed_to":         result.Metadata.RoutedTo,
		"routing_time_ms":   result.Metadata.RoutingTimeMS,
		"execution_time_ms": result.Metadata.ExecutionTimeMS,
	})
}

// dispatchPromptGet implements prompts/get, resolving the namespaced prompt
// name within the caller's org scope.
func (s *Server) dispatchPromptGet(ctx context.Context, req protocol.Request) *protocol.Response {
	var params struct {
		Name string `json:"name"`
	}
	raw, err := json.Marshal(req.Params)
	if err != nil || json.Unmarshal(raw, &params) != nil || params.Name == "" {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidParams, "invalid prompts/get params", nil))
	}
	var orgPtr *string
	if org := OrgID(ctx); org != "" {
		orgPtr = &org
	}
	prompt, err := s.reg.GetPromptByName(ctx, params.Name, orgPtr)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidParams, fmt.Sprintf("prompt %q not found", params.Name), nil))
	}
	return protocol.NewResult(req.ID, map[string]any{"prompt": prompt})
}

// dispatchResourceRead implements resources/read, resolving the resource by
// its URI within the caller's org scope.
func (s *Server) dispatchResourceRead(ctx context.Context, req protocol.Request) *protocol.Response {
	var params struct {
		URI string `json:"uri"`
	}
	raw, err := json.Marshal(req.Params)
	if err != nil || json.Unmarshal(raw, &params) != nil || params.URI == "" {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidParams, "invalid resources/read params", nil))
	}
	var orgPtr *string
	if org := OrgID(ctx); org != "" {
		orgPtr = &org
	}
	resource, err := s.reg.GetResourceByURI(ctx, params.URI, orgPtr)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidParams, fmt.Sprintf("resource %q not found", params.URI), nil))
	}
	return protocol.NewResult(req.ID, map[string]any{"resource": resource})
}

// handleSearch implements POST /search per spec §6.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Query          string  `json:"query"`
		Type           string  `json:"type"`
		Limit          int     `json:"limit"`
		ScoreThreshold float32 `json:"score_threshold"`
		Strategy       string  `json:"strategy"`
		OrgID          string  `json:"org_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	resp, err := s.searchE.Search(r.Context(), search.Query{
		Text: body.Query, ItemType: search.ItemType(body.Type), Limit: body.Limit,
		ScoreThreshold: body.ScoreThreshold, Strategy: search.Strategy(body.Strategy), OrgID: body.OrgID,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": resp.Results, "metadata": resp.Metadata})
}

// handleProgressStream implements GET /progress/{id}/stream as SSE, per
// spec §4.8 and §6. Using http.Flusher directly is the idiomatic stdlib
// pattern for a push stream; nothing in the retrieved corpus implements a
// server-side SSE writer to ground this on.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/progress/"), "/stream")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	ch, err := s.progress.Subscribe(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range ch {
		data, _ := json.Marshal(event.Data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
		flusher.Flush()
	}
}

func (s *Server) handleAggregatorServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		servers, err := s.servers.List(r.Context(), OrgID(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
	case http.MethodPost:
		var srv struct {
			Name           string            `json:"name"`
			Transport      string            `json:"transport"`
			Command        string            `json:"command"`
			Args           []string          `json:"args"`
			Env            map[string]string `json:"env"`
			URL            string            `json:"url"`
			Headers        map[string]string `json:"headers"`
			HealthCheckURL string            `json:"health_check_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&srv); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		var orgPtr *string
		if org := OrgID(r.Context()); org != "" {
			orgPtr = &org
		}
		record := &postgres.ExternalServer{
			Name: srv.Name, Transport: postgres.ServerTransport(srv.Transport), Command: srv.Command,
			Args: srv.Args, Env: srv.Env, URL: srv.URL, Headers: srv.Headers,
			HealthCheckURL: srv.HealthCheckURL, Status: postgres.ServerRegistered, OrgID: orgPtr,
		}
		id, err := s.servers.Register(r.Context(), record)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAggregatorServerByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/aggregator/servers/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "connect":
			writeJSON(w, http.StatusAccepted, map[string]any{"status": "connecting"})
			return
		case "disconnect":
			if sess, ok := s.servers.Session(id); ok {
				if err := sess.Disconnect(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": "disconnected"})
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		srv, err := s.servers.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, srv)
	case http.MethodDelete:
		if err := s.servers.Remove(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.skillCat.List(r.Context(), OrgID(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"skills": list})
	case http.MethodPost:
		var in skills.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		created, err := s.skillCat.Create(r.Context(), in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSkillByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/skills/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	if len(parts) == 2 && parts[1] == "tools" {
		toolIDs, err := s.skillCat.ToolsBySkill(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tool_ids": toolIDs})
		return
	}

	switch r.Method {
	case http.MethodGet:
		skill, err := s.skillCat.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, skill)
	case http.MethodPut:
		var in skills.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		in.ID = id
		updated, err := s.skillCat.Update(r.Context(), in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.skillCat.Deactivate(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHILDecide implements POST /api/v1/hil/{request_id}/decide, the
// approve/reject endpoint for a pending human-in-the-loop request.
func (s *Server) handleHILDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/hil/")
	requestID := strings.TrimSuffix(rest, "/decide")
	if requestID == "" || requestID == rest {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if err := s.hilOrch.Decide(r.Context(), requestID, body.Approve); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "decided"})
}

// Run starts the HTTP server and blocks until ctx is canceled, then drains
// in-flight requests within a 30s grace period before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(err, "error shutting down http server")
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func acceptsSSE(accept string) bool {
	return strings.Contains(accept, "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = httputil.WriteJSON(w, status, v)
}

func writeRPCResponse(w http.ResponseWriter, sse bool, resp protocol.Response) {
	data, _ := json.Marshal(resp)
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: %s\n\n", data)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeRPCError(w http.ResponseWriter, sse bool, id any, rpcErr *protocol.Error) {
	writeRPCResponse(w, sse, *protocol.NewErrorResponse(id, rpcErr))
}

