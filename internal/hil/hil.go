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

// Package hil is the Human-In-the-Loop Orchestrator (spec §4.7): it builds
// the request/fingerprint, persists pending interactions through
// postgres.HILRepo, evaluates whether a tool call's risk profile demands a
// grant via a CEL policy expression, and exposes the decide/expire paths
// the human-facing API and the §9 expiry sweep call into.
package hil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// Response is the structured payload returned to a caller whose tool call
// was gated, per spec §4.7's `{status, hil_type, request_id, options, data}`.
type Response struct {
	Status    string          `json:"status"`
	HILType   postgres.HILKind `json:"hil_type"`
	RequestID string          `json:"request_id"`
	Options   json.RawMessage `json:"options,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	statusAuthorizationRequested = "authorization_requested"
	statusHumanInputRequested    = "human_input_requested"
)

// DefaultExpiry matches spec §4.7's "expires_at default 10 min from creation".
const DefaultExpiry = 10 * time.Minute

// RiskContext groups the inputs of a gating decision. CheckGate does not
// take it: it builds the CEL activation as a map with action.risk,
// action.tool and grant.approved.
type RiskContext struct {
	ToolName      string
	SecurityLevel postgres.SecurityLevel
	Arguments     map[string]any
	GrantApproved bool
}

// Orchestrator evaluates gating policy and manages HIL request lifecycle.
type Orchestrator struct {
	repo   *postgres.HILRepo
	env    *cel.Env
	policy cel.Program
	expiry time.Duration
	logger logr.Logger
}

// defaultPolicyExpr requires a grant whenever the tool's security level is
// HIGH and no prior approval was found for this call's fingerprint.
const defaultPolicyExpr = `action.risk == "HIGH" && !grant.approved`

// New builds an Orchestrator, compiling the risk-gating CEL expression
// once at construction so per-call CheckGate evaluations never pay parse cost.
func New(repo *postgres.HILRepo, expiry time.Duration, logger logr.Logger) (*Orchestrator, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("grant", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("hil: build cel env: %w", err)
	}
	ast, issues := env.Compile(defaultPolicyExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("hil: compile policy: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("hil: build cel program: %w", err)
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Orchestrator{repo: repo, env: env, policy: program, expiry: expiry, logger: logger.WithName("hil")}, nil
}

// Fingerprint derives the stable identity of a (user, tool, arguments)
// triple the spec uses to recognize a retried call as the same gated
// request. Arguments are marshaled with sorted keys so semantically
// identical calls never produce different fingerprints due to map order.
func Fingerprint(userID, toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, args[k])
	}
	payload, _ := json.Marshal(map[string]any{"user": userID, "tool": toolName, "args": ordered})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CheckGate evaluates the risk policy for a prospective tool call. If an
// approved grant already exists for this fingerprint, it returns (nil, nil)
// — the caller should proceed. Otherwise, if the policy requires a grant,
// it persists a new pending request (or returns the existing pending one)
// and returns the structured response to surface to the caller.
func (o *Orchestrator) CheckGate(ctx context.Context, userID, toolName string, args map[string]any, security postgres.SecurityLevel) (*Response, error) {
	fingerprint := Fingerprint(userID, toolName, args)

	approved, err := o.repo.ApprovedByFingerprint(ctx, fingerprint)
	if err != nil && err != postgres.ErrNotFound {
		return nil, fmt.Errorf("hil: check approved grant: %w", err)
	}

	activation := map[string]any{
		"action": map[string]any{"risk": string(security), "tool": toolName},
		"grant":  map[string]any{"approved": approved != nil},
	}
	out, _, err := o.policy.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("hil: evaluate policy: %w", err)
	}
	needsGrant, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("hil: policy expression did not evaluate to bool")
	}
	if !needsGrant {
		return nil, nil
	}

	if pending, err := o.repo.PendingByFingerprint(ctx, fingerprint); err == nil {
		return pendingResponse(pending), nil
	} else if err != postgres.ErrNotFound {
		return nil, fmt.Errorf("hil: check pending grant: %w", err)
	}

	argsJSON, _ := json.Marshal(args)
	req := &postgres.HILRequest{
		ID:          uuid.NewString(),
		Kind:        postgres.HILAuthorization,
		UserID:      userID,
		ToolName:    toolName,
		Action:      "tools/call",
		RiskLevel:   string(security),
		Fingerprint: fingerprint,
		Payload:     argsJSON,
		State:       postgres.HILPending,
		ExpiresAt:   time.Now().Add(o.expiry),
	}
	if err := o.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("hil: persist request: %w", err)
	}
	return pendingResponse(req), nil
}

func pendingResponse(req *postgres.HILRequest) *Response {
	status := statusAuthorizationRequested
	if req.Kind == postgres.HILInput {
		status = statusHumanInputRequested
	}
	return &Response{Status: status, HILType: req.Kind, RequestID: req.ID, Data: req.Payload}
}

// Decide transitions a pending request to a terminal state, called by the
// human-facing API once a person has reviewed it.
func (o *Orchestrator) Decide(ctx context.Context, requestID string, approve bool) error {
	state := postgres.HILRejected
	if approve {
		state = postgres.HILApproved
	}
	if err := o.repo.Decide(ctx, requestID, state); err != nil {
		return fmt.Errorf("hil: decide %s: %w", requestID, err)
	}
	return nil
}

// SweepExpired marks overdue pending requests expired. cmd/main.go runs it
// through the health monitor's cron sweep schedule.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int64, error) {
	n, err := o.repo.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("hil: sweep expired requests: %w", err)
	}
	if n > 0 {
		o.logger.Info("expired overdue HIL requests", "count", n)
	}
	return n, nil
}
