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

// Package registry is the canonical Tool/Prompt/Resource Registry: it owns
// namespacing (`<server>.<original_name>`), tenant-scoped uniqueness, input
// schema validation, and mediates every catalog write on behalf of the sync
// pipeline, the classifier, and the aggregator's server-removal sequence.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/xeipuuv/gojsonschema"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// ErrInvalidInputSchema is returned when a tool's input_schema fails
// structural JSON Schema validation.
var ErrInvalidInputSchema = errors.New("registry: input_schema is not a valid JSON Schema document")

// Registry wraps the catalog repositories with the write-path invariants
// spec §3.1/§3.2 assign to the Tool/Prompt/Resource Registry.
type Registry struct {
	tools     *postgres.ToolRepo
	prompts   *postgres.PromptRepo
	resources *postgres.ResourceRepo
	logger    logr.Logger
}

// New builds a Registry.
func New(tools *postgres.ToolRepo, prompts *postgres.PromptRepo, resources *postgres.ResourceRepo, logger logr.Logger) *Registry {
	return &Registry{tools: tools, prompts: prompts, resources: resources, logger: logger.WithName("registry")}
}

// NamespacedName builds the `<server>.<original_name>` identifier an
// externally-sourced record carries, per spec §3.1.
func NamespacedName(serverName, originalName string) string {
	return serverName + "." + originalName
}

// validateInputSchema checks that a non-empty input_schema is itself a
// structurally valid JSON Schema document, mirroring the validator pattern
// in the teacher's schema package (load as a gojsonschema document, reject
// on parse/compile error) without pinning to one particular schema version.
func validateInputSchema(schema json.RawMessage) error {
	if len(schema) == 0 || string(schema) == "{}" || string(schema) == "null" {
		return nil
	}
	loader := gojsonschema.NewBytesLoader(schema)
	// Compiling the document as its own schema surfaces syntactic/structural
	// errors (bad $ref, unknown keyword types) without requiring a target
	// instance to validate against.
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInputSchema, err)
	}
	return nil
}

// UpsertTool validates and upserts a tool record, used by both internal
// sync_internal and external sync_external paths.
func (r *Registry) UpsertTool(ctx context.Context, t *postgres.Tool) (int64, error) {
	if err := validateInputSchema(t.InputSchema); err != nil {
		return 0, err
	}
	if t.SourceServerID != nil && *t.SourceServerID != "" {
		// Externally-sourced tools must carry the server-name namespace
		// prefix; callers pass OriginalName pre-computed by the sync
		// pipeline and Name already built via NamespacedName.
		if t.OriginalName == "" {
			return 0, fmt.Errorf("registry: external tool missing original_name")
		}
	}
	return r.tools.Upsert(ctx, t)
}

// UpsertPrompt validates and upserts a prompt record.
func (r *Registry) UpsertPrompt(ctx context.Context, p *postgres.Prompt) (int64, error) {
	if err := validateInputSchema(p.InputSchema); err != nil {
		return 0, err
	}
	return r.prompts.Upsert(ctx, p)
}

// UpsertResource upserts a resource record. Resources carry a URI instead of
// an input schema, so no schema validation applies.
func (r *Registry) UpsertResource(ctx context.Context, res *postgres.Resource) (int64, error) {
	return r.resources.Upsert(ctx, res)
}

// GetTool fetches a tool by id.
func (r *Registry) GetTool(ctx context.Context, id int64) (*postgres.Tool, error) {
	return r.tools.GetByID(ctx, id)
}

// GetToolByName fetches a tool by its namespaced name within a scope.
func (r *Registry) GetToolByName(ctx context.Context, name string, orgID *string) (*postgres.Tool, error) {
	return r.tools.GetByName(ctx, name, orgID)
}

// GetPromptByName fetches a prompt by its namespaced name within a scope,
// for prompts/get.
func (r *Registry) GetPromptByName(ctx context.Context, name string, orgID *string) (*postgres.Prompt, error) {
	return r.prompts.GetByName(ctx, name, orgID)
}

// GetResourceByURI fetches a resource by URI within a scope, for
// resources/read.
func (r *Registry) GetResourceByURI(ctx context.Context, uri string, orgID *string) (*postgres.Resource, error) {
	return r.resources.GetByURI(ctx, uri, orgID)
}

// ListTools lists active tools visible to orgID.
func (r *Registry) ListTools(ctx context.Context, orgID string, limit, offset int) ([]*postgres.Tool, error) {
	return r.tools.List(ctx, orgID, limit, offset)
}

// ListPrompts lists active prompts visible to orgID.
func (r *Registry) ListPrompts(ctx context.Context, orgID string, limit, offset int) ([]*postgres.Prompt, error) {
	return r.prompts.List(ctx, orgID, limit, offset)
}

// ListResources lists active resources visible to orgID.
func (r *Registry) ListResources(ctx context.Context, orgID string, limit, offset int) ([]*postgres.Resource, error) {
	return r.resources.List(ctx, orgID, limit, offset)
}

// RemoveServerRecords deletes every tool/prompt/resource owned by serverID
// via the atomic CTE delete, returning the counts removed — step 2 of the
// Server Registry's 5-step removal sequence (spec §4.5.1).
func (r *Registry) RemoveServerRecords(ctx context.Context, serverID string) (tools, prompts, resources int64, err error) {
	tools, err = r.tools.DeleteByServer(ctx, serverID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("registry: remove tools: %w", err)
	}
	prompts, err = r.prompts.DeleteByServer(ctx, serverID)
	if err != nil {
		return tools, 0, 0, fmt.Errorf("registry: remove prompts: %w", err)
	}
	resources, err = r.resources.DeleteByServer(ctx, serverID)
	if err != nil {
		return tools, prompts, 0, fmt.Errorf("registry: remove resources: %w", err)
	}
	return tools, prompts, resources, nil
}
