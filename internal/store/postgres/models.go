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

package postgres

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors returned by repository methods.
var (
	ErrNotFound        = errors.New("postgres: record not found")
	ErrNameConflict    = errors.New("postgres: name already in use for this scope")
	ErrInvalidSkillRef = errors.New("postgres: skill_ids reference an unknown or inactive skill")
)

// SecurityLevel gates tool execution behind an authorization grant.
type SecurityLevel string

const (
	SecurityLow    SecurityLevel = "LOW"
	SecurityMedium SecurityLevel = "MEDIUM"
	SecurityHigh   SecurityLevel = "HIGH"
)

// ServerTransport is how a Session Manager dials an external server.
type ServerTransport string

const (
	TransportSTDIO ServerTransport = "STDIO"
	TransportSSE   ServerTransport = "SSE"
	TransportHTTP  ServerTransport = "HTTP"
)

// ServerStatus is the external server's connection lifecycle state.
type ServerStatus string

const (
	ServerRegistered  ServerStatus = "REGISTERED"
	ServerConnecting  ServerStatus = "CONNECTING"
	ServerConnected   ServerStatus = "CONNECTED"
	ServerDegraded    ServerStatus = "DEGRADED"
	ServerDisconnected ServerStatus = "DISCONNECTED"
	ServerError       ServerStatus = "ERROR"
)

// AssignmentSource records how a tool-skill assignment was produced.
type AssignmentSource string

const (
	SourceLLM       AssignmentSource = "llm"
	SourceManual    AssignmentSource = "manual"
	SourceHeuristic AssignmentSource = "heuristic"
)

// HILKind enumerates the human-in-the-loop interaction kinds.
type HILKind string

const (
	HILAuthorization        HILKind = "authorization"
	HILInput                HILKind = "input"
	HILReview               HILKind = "review"
	HILInputWithAuthorization HILKind = "input_with_authorization"
)

// HILState is the HIL request's lifecycle state; terminal states are sticky.
type HILState string

const (
	HILPending   HILState = "pending"
	HILApproved  HILState = "approved"
	HILRejected  HILState = "rejected"
	HILSubmitted HILState = "submitted"
	HILCancelled HILState = "cancelled"
	HILExpired   HILState = "expired"
)

// ItemKind distinguishes the three catalog entity types for vector point-id
// offsetting and cache namespacing.
type ItemKind string

const (
	ItemTool     ItemKind = "tool"
	ItemPrompt   ItemKind = "prompt"
	ItemResource ItemKind = "resource"
)

// Catalog is the shape shared by Tool, Prompt, and Resource: a namespaced,
// tenant-scoped, optionally classified registry record.
type Catalog struct {
	ID             int64
	Name           string
	Description    string
	Category       string
	OrgID          *string
	IsGlobal       bool
	SourceServerID *string
	OriginalName   string
	SkillIDs       []string
	PrimarySkillID *string
	IsClassified   bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tool is a callable capability, internal or namespaced from an external
// server, with an input JSON schema and a security level gating execution.
type Tool struct {
	Catalog
	InputSchema   json.RawMessage
	Annotations   json.RawMessage
	SecurityLevel SecurityLevel
}

// Prompt mirrors Tool minus the security level.
type Prompt struct {
	Catalog
	InputSchema json.RawMessage
	Annotations json.RawMessage
}

// Resource mirrors Tool minus the security level, plus a URI and an access set.
type Resource struct {
	Catalog
	URI          string
	Annotations  json.RawMessage
	Owner        string
	AllowedUsers []string
}

// SkillCategory is a node in the flat skill taxonomy used for Stage 1 search.
type SkillCategory struct {
	ID           string
	Name         string
	Description  string
	Keywords     []string
	Examples     []string
	ParentDomain string
	ToolCount    int
	OrgID        *string
	IsGlobal     bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToolSkillAssignment is one row of the tool<->skill bipartite graph.
type ToolSkillAssignment struct {
	ToolID     int64
	SkillID    string
	Confidence float64
	IsPrimary  bool
	Source     AssignmentSource
	CreatedAt  time.Time
}

// ExternalServer is a registered MCP backend the Session Manager may connect to.
type ExternalServer struct {
	ID              string
	Name            string
	Transport       ServerTransport
	Command         string
	Args            []string
	Env             map[string]string
	URL             string
	Headers         map[string]string
	HealthCheckURL  string
	Status          ServerStatus
	LastError       string
	ToolCount       int
	OrgID           *string
	IsGlobal        bool
	RegisteredAt    time.Time
	ConnectedAt     *time.Time
	LastHealthCheck *time.Time
}

// HILRequest is a pending or resolved human-in-the-loop interaction.
type HILRequest struct {
	ID          string
	Kind        HILKind
	UserID      string
	ToolName    string
	Action      string
	RiskLevel   string
	Fingerprint string
	Options     json.RawMessage
	Payload     json.RawMessage
	State       HILState
	CreatedAt   time.Time
	DecidedAt   *time.Time
	ExpiresAt   time.Time
}

// AuditEntry records one authz decision or sensitive mutation.
type AuditEntry struct {
	ID         int64
	OccurredAt time.Time
	UserID     string
	OrgID      *string
	Action     string
	Resource   string
	Outcome    string
	Detail     json.RawMessage
}

// --- nullable helpers --------------------------------------------------------

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func marshalJSONB(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func rawOrEmptyObject(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}
