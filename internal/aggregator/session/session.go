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

// Package session holds one live MCP client session per CONNECTED external
// server, per spec §4.5.2: transport instantiation, handshake with
// compensating teardown on failure, bounded-channel backpressure, and the
// INITIALIZING/READY/DRAINING/CLOSED/FAILED state machine.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/altairalabs/mcpagg/internal/protocol"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	syncpkg "github.com/altairalabs/mcpagg/internal/sync"
)

// State is one session's lifecycle state.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateReady        State = "READY"
	StateDraining     State = "DRAINING"
	StateClosed       State = "CLOSED"
	StateFailed       State = "FAILED"
)

// Transport configures how a Session dials its external server.
type Transport struct {
	Type    postgres.ServerTransport
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
}

// Config bounds the session's behavior.
type Config struct {
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
	RequestQueue   int
}

// request is one queued tools/call dispatched to this session's driver.
type request struct {
	name   string
	args   map[string]any
	result chan requestResult
	ctx    context.Context
}

type requestResult struct {
	value *mcp.CallToolResult
	err   error
}

// Session is one external server's live MCP connection. Session affinity is
// enforced by construction: one Session wraps exactly one transport and, for
// STDIO, exactly one subprocess — never multiplexed.
type Session struct {
	serverID   string
	serverName string
	transport  Transport
	cfg        Config
	logger     logr.Logger

	mu      sync.RWMutex
	state   State
	client  *mcp.Client
	mcpSess *mcp.ClientSession

	requests chan request
	done     chan struct{}
}

// New constructs a Session in INITIALIZING state. Callers must call Connect
// before any tool call.
func New(serverID, serverName string, transport Transport, cfg Config, logger logr.Logger) *Session {
	return &Session{
		serverID:   serverID,
		serverName: serverName,
		transport:  transport,
		cfg:        cfg,
		logger:     logger.WithName("session").WithValues("server", serverName),
		state:      StateInitializing,
		requests:   make(chan request, cfg.RequestQueue),
		done:       make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect instantiates the transport, performs the MCP handshake, and
// starts the driver goroutine. On any failure it runs the compensating
// teardown (closing whatever transport resources were opened) before
// returning, per spec §4.5.2.
func (s *Session) Connect(ctx context.Context) (err error) {
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "mcpagg", Version: "v1"}, nil)

	var transport mcp.Transport
	switch s.transport.Type {
	case postgres.TransportSSE, postgres.TransportHTTP:
		transport = &mcp.SSEClientTransport{Endpoint: s.transport.URL}
	case postgres.TransportSTDIO:
		cmd := exec.CommandContext(connectCtx, s.transport.Command, s.transport.Args...)
		for k, v := range s.transport.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
		transport = &mcp.CommandTransport{Command: cmd}
	default:
		s.setState(StateFailed)
		return fmt.Errorf("session: unsupported transport %q", s.transport.Type)
	}

	mcpSess, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		// Compensating exit: nothing else was allocated at this point beyond
		// the transport descriptor itself, which mcp.Client.Connect releases
		// internally on handshake failure.
		s.setState(StateFailed)
		return fmt.Errorf("session: handshake with %s: %w", s.serverName, err)
	}

	s.mu.Lock()
	s.client = client
	s.mcpSess = mcpSess
	s.state = StateReady
	s.mu.Unlock()

	go s.driveRequests(ctx)
	return nil
}

// driveRequests is the session's single owning goroutine: every tool call
// against this server passes through this loop, preserving submission order
// on the bounded channel per spec §5's ordering guarantees.
func (s *Session) driveRequests(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case req := <-s.requests:
			result, err := s.mcpSess.CallTool(req.ctx, &mcp.CallToolParams{Name: req.name, Arguments: req.args})
			select {
			case req.result <- requestResult{value: result, err: err}:
			case <-req.ctx.Done():
			}
		}
	}
}

// CallTool enqueues a tool call on this session's bounded request channel.
// A full channel returns SERVER_BUSY immediately without blocking other
// callers, per spec §4.5.2's backpressure rule.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if s.State() != StateReady {
		return nil, protocol.ServerUnavailable(s.serverName)
	}

	req := request{name: name, args: args, result: make(chan requestResult, 1), ctx: ctx}
	select {
	case s.requests <- req:
	default:
		return nil, protocol.ServerBusy(s.serverName)
	}

	select {
	case res := <-req.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect transitions DRAINING, waits up to the configured drain timeout
// for in-flight requests (tracked implicitly by the driver loop draining its
// channel), fails any request still queued with SERVER_DRAINED, then
// transitions CLOSED and releases the transport.
func (s *Session) Disconnect(ctx context.Context) error {
	s.setState(StateDraining)

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
drain:
	for {
		select {
		case <-drainCtx.Done():
			s.logger.Info("drain timeout exceeded, in-flight requests receive SERVER_DRAINED")
			break drain
		case <-ticker.C:
			if len(s.requests) == 0 {
				break drain
			}
		}
	}

	close(s.done)
	for pending := true; pending; {
		select {
		case req := <-s.requests:
			req.result <- requestResult{err: protocol.ServerDrained(s.serverName)}
		default:
			pending = false
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	if s.mcpSess != nil {
		if err := s.mcpSess.Close(); err != nil {
			return fmt.Errorf("session: close %s: %w", s.serverName, err)
		}
	}
	return nil
}

// ListTools satisfies sync.Lister for the Tool Aggregator's sync_external.
func (s *Session) ListTools(ctx context.Context) ([]syncpkg.ToolDescriptor, error) {
	s.mu.RLock()
	mcpSess := s.mcpSess
	s.mu.RUnlock()
	if mcpSess == nil {
		return nil, protocol.ServerUnavailable(s.serverName)
	}

	var out []syncpkg.ToolDescriptor
	for tool, err := range mcpSess.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("session: list tools from %s: %w", s.serverName, err)
		}
		schema, _ := json.Marshal(tool.InputSchema)
		out = append(out, syncpkg.ToolDescriptor{
			OriginalName: tool.Name,
			Description:  tool.Description,
			InputSchema:  schema,
			Security:     postgres.SecurityLow,
		})
	}
	return out, nil
}

// ListPrompts satisfies sync.Lister.
func (s *Session) ListPrompts(ctx context.Context) ([]syncpkg.PromptDescriptor, error) {
	s.mu.RLock()
	mcpSess := s.mcpSess
	s.mu.RUnlock()
	if mcpSess == nil {
		return nil, protocol.ServerUnavailable(s.serverName)
	}

	var out []syncpkg.PromptDescriptor
	for prompt, err := range mcpSess.Prompts(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("session: list prompts from %s: %w", s.serverName, err)
		}
		out = append(out, syncpkg.PromptDescriptor{
			OriginalName: prompt.Name,
			Description:  prompt.Description,
		})
	}
	return out, nil
}

// ListResources satisfies sync.Lister.
func (s *Session) ListResources(ctx context.Context) ([]syncpkg.ResourceDescriptor, error) {
	s.mu.RLock()
	mcpSess := s.mcpSess
	s.mu.RUnlock()
	if mcpSess == nil {
		return nil, protocol.ServerUnavailable(s.serverName)
	}

	var out []syncpkg.ResourceDescriptor
	for res, err := range mcpSess.Resources(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("session: list resources from %s: %w", s.serverName, err)
		}
		out = append(out, syncpkg.ResourceDescriptor{
			OriginalName: res.Name,
			Description:  res.Description,
			URI:          res.URI,
		})
	}
	return out, nil
}

// Ping performs the lightweight health-monitor liveness check (spec §4.5.5):
// an MCP ping request against the live session.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.RLock()
	mcpSess := s.mcpSess
	state := s.state
	s.mu.RUnlock()
	if state != StateReady || mcpSess == nil {
		return protocol.ServerUnavailable(s.serverName)
	}
	return mcpSess.Ping(ctx, nil)
}
