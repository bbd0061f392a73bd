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

// Package server is the aggregator's Server Registry (spec §4.5.1): the
// single authority for registering, listing, and atomically removing
// external MCP servers and everything they own across the relational store,
// the vector index, and the cache.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/aggregator/session"
	"github.com/altairalabs/mcpagg/internal/registry"
	"github.com/altairalabs/mcpagg/internal/store/cache"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
)

// Registry tracks one *session.Session per live external server alongside
// its persisted mcp.external_servers record.
type Registry struct {
	repo     *postgres.ServerRepo
	catalog  *registry.Registry
	vec      *vector.RetryingClient
	cache    *cache.Cache
	sessions map[string]*session.Session
	mu       sync.RWMutex
	logger   logr.Logger
}

// New builds a Registry.
func New(repo *postgres.ServerRepo, catalog *registry.Registry, vec *vector.RetryingClient, c *cache.Cache, logger logr.Logger) *Registry {
	return &Registry{
		repo:     repo,
		catalog:  catalog,
		vec:      vec,
		cache:    c,
		sessions: make(map[string]*session.Session),
		logger:   logger.WithName("server-registry"),
	}
}

// Register persists a new external server record in REGISTERED status; the
// caller is expected to follow up with Connect to bring it live.
func (r *Registry) Register(ctx context.Context, s *postgres.ExternalServer) (string, error) {
	return r.repo.Register(ctx, s)
}

// List returns external servers visible to orgID.
func (r *Registry) List(ctx context.Context, orgID string) ([]*postgres.ExternalServer, error) {
	return r.repo.List(ctx, orgID)
}

// Get fetches one external server record.
func (r *Registry) Get(ctx context.Context, id string) (*postgres.ExternalServer, error) {
	return r.repo.GetByID(ctx, id)
}

// Session returns the live session for a server, if any is currently held.
// The reader-favoring lock matches spec §5's "global mutable state (the
// server registry map) is protected by a reader-favoring lock".
func (r *Registry) Session(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Attach records the live session for a connected server, replacing any
// prior entry atomically.
func (r *Registry) Attach(id string, s *session.Session) {
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
}

// Detach removes a server's session entry without closing it; callers that
// already closed the session (e.g. Remove) use this to drop the reference.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Remove executes the 5-step removal sequence from spec §4.5.1: disconnect
// any live session, delete owned catalog records via the atomic CTE
// deletes, delete vector points by payload filter, invalidate caches, then
// delete the server record. A failure deleting catalog records aborts the
// removal before the server record is touched; vector-point and cache
// failures are logged and do not stop the removal, so vector points can
// outlive the server record when their deletion fails.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if sess, ok := r.Session(id); ok {
		if err := sess.Disconnect(ctx); err != nil {
			r.logger.Error(err, "error disconnecting session during removal, continuing", "server_id", id)
		}
		r.Detach(id)
	}

	toolsRemoved, promptsRemoved, resourcesRemoved, err := r.catalog.RemoveServerRecords(ctx, id)
	if err != nil {
		return fmt.Errorf("server registry: remove catalog records: %w", err)
	}
	r.logger.Info("removed catalog records for server", "server_id", id,
		"tools", toolsRemoved, "prompts", promptsRemoved, "resources", resourcesRemoved)

	for _, coll := range []vector.Collection{vector.CollectionTools, vector.CollectionPrompts, vector.CollectionResources} {
		if _, err := r.vec.DeleteByFilter(ctx, coll, vector.Filter{ServerID: id}); err != nil {
			r.logger.Error(err, "failed to delete vector points for removed server", "collection", coll, "server_id", id)
		}
	}

	if r.cache != nil {
		if err := r.cache.InvalidateNamespace(ctx, cache.NamespaceToolList); err != nil {
			r.logger.Error(err, "failed to invalidate tool_list cache during server removal")
		}
		if err := r.cache.InvalidateNamespace(ctx, cache.NamespaceSearch); err != nil {
			r.logger.Error(err, "failed to invalidate search cache during server removal")
		}
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("server registry: delete server record: %w", err)
	}
	return nil
}
