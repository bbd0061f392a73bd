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

// Package sync reconciles the registry (and downstream vector index) with
// two authorities: the process's own internal auto-discovery scan, and each
// connected external server's list_tools/list_prompts/list_resources result.
// It owns the insert/update/delete set computation, the embedding and
// classification job queues, and cache pattern invalidation, per spec §4.1.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/embedclient"
	"github.com/altairalabs/mcpagg/internal/registry"
	"github.com/altairalabs/mcpagg/internal/skills"
	"github.com/altairalabs/mcpagg/internal/store/cache"
	"github.com/altairalabs/mcpagg/internal/store/objectstore"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
)

// ToolDescriptor is one tool capability as advertised by an internal module
// or an external server's list_tools result, prior to namespacing.
type ToolDescriptor struct {
	OriginalName string
	Description  string
	InputSchema  json.RawMessage
	Annotations  json.RawMessage
	Category     string
	Security     postgres.SecurityLevel
}

// PromptDescriptor mirrors ToolDescriptor for prompts.
type PromptDescriptor struct {
	OriginalName string
	Description  string
	InputSchema  json.RawMessage
	Annotations  json.RawMessage
	Category     string
}

// ResourceDescriptor mirrors ToolDescriptor for resources.
type ResourceDescriptor struct {
	OriginalName string
	Description  string
	URI          string
	Annotations  json.RawMessage
	Category     string
	Owner        string
	AllowedUsers []string
}

// Lister is what the Session Manager exposes for sync_external: the three
// list_* capabilities of one connected server.
type Lister interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	ListPrompts(ctx context.Context) ([]PromptDescriptor, error)
	ListResources(ctx context.Context) ([]ResourceDescriptor, error)
}

// InternalSource is what an in-process registration module exposes for
// sync_internal — the spec's "declared tools/prompts/resources" authority.
type InternalSource interface {
	Lister
}

// EmbedJob is one queued embedding task: embed a catalog item's text and
// upsert it into the matching vector collection.
type EmbedJob struct {
	Kind postgres.ItemKind
	ID   int64
	Text string
}

// ClassifyJob is one queued classification task (tools only).
type ClassifyJob struct {
	ToolID int64
}

// Pipeline is the Auto-Discovery & Sync component.
type Pipeline struct {
	registry   *registry.Registry
	skillCat   *skills.Catalog
	classifier *skills.Classifier
	toolRepo   *postgres.ToolRepo
	promptRepo *postgres.PromptRepo
	resRepo    *postgres.ResourceRepo
	vec        *vector.RetryingClient
	embed      embedclient.Client
	cache      *cache.Cache
	objects    objectstore.Store
	logger     logr.Logger

	embedQueue  chan EmbedJob
	classifyQueue chan ClassifyJob
}

// Config bounds the background job queues (spec §5's "bounded channels").
type Config struct {
	EmbedQueueSize     int
	ClassifyQueueSize  int
}

// DefaultConfig returns reasonable queue bounds for a single-process deployment.
func DefaultConfig() Config {
	return Config{EmbedQueueSize: 256, ClassifyQueueSize: 256}
}

// New builds a Pipeline; its background embedding/classification workers
// are launched separately by Start. objects is optional: when nil, external
// descriptors are not spilled to the object store.
func New(
	reg *registry.Registry,
	skillCat *skills.Catalog,
	classifier *skills.Classifier,
	toolRepo *postgres.ToolRepo,
	promptRepo *postgres.PromptRepo,
	resRepo *postgres.ResourceRepo,
	vec *vector.RetryingClient,
	embed embedclient.Client,
	c *cache.Cache,
	objects objectstore.Store,
	cfg Config,
	logger logr.Logger,
) *Pipeline {
	p := &Pipeline{
		registry: reg, skillCat: skillCat, classifier: classifier,
		toolRepo: toolRepo, promptRepo: promptRepo, resRepo: resRepo,
		vec: vec, embed: embed, cache: c, objects: objects, logger: logger.WithName("sync"),
		embedQueue:    make(chan EmbedJob, cfg.EmbedQueueSize),
		classifyQueue: make(chan ClassifyJob, cfg.ClassifyQueueSize),
	}
	return p
}

// Start launches the embedding and classification worker goroutines. ctx
// cancellation stops both.
func (p *Pipeline) Start(ctx context.Context) {
	go p.runEmbedWorker(ctx)
	go p.runClassifyWorker(ctx)
}

func (p *Pipeline) runEmbedWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.embedQueue:
			if err := p.handleEmbedJob(ctx, job); err != nil {
				p.logger.Error(err, "embed job failed", "kind", job.Kind, "id", job.ID)
			}
		}
	}
}

func (p *Pipeline) runClassifyWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.classifyQueue:
			if err := p.handleClassifyJob(ctx, job); err != nil {
				p.logger.Error(err, "classify job failed", "tool_id", job.ToolID)
			}
		}
	}
}

func (p *Pipeline) handleEmbedJob(ctx context.Context, job EmbedJob) error {
	vec, err := p.embed.Embed(ctx, job.Text)
	if err != nil {
		return fmt.Errorf("sync: embed: %w", err)
	}

	collection, err := collectionFor(job.Kind)
	if err != nil {
		return err
	}
	payload := map[string]any{"item_id": job.ID, "item_type": string(job.Kind)}
	return p.vec.Upsert(ctx, collection, []int64{job.ID}, [][]float32{vec}, []map[string]any{payload})
}

func (p *Pipeline) handleClassifyJob(ctx context.Context, job ClassifyJob) error {
	tool, err := p.toolRepo.GetByID(ctx, job.ToolID)
	if err != nil {
		return fmt.Errorf("sync: load tool for classification: %w", err)
	}
	return p.classifier.ClassifyTool(ctx, tool)
}

func collectionFor(kind postgres.ItemKind) (vector.Collection, error) {
	switch kind {
	case postgres.ItemTool:
		return vector.CollectionTools, nil
	case postgres.ItemPrompt:
		return vector.CollectionPrompts, nil
	case postgres.ItemResource:
		return vector.CollectionResources, nil
	default:
		return "", fmt.Errorf("sync: unknown item kind %q", kind)
	}
}

// enqueueEmbed schedules an embedding job for a catalog item. Failure
// retries are handled inside the RetryingClient the worker uses; a send to
// a full channel is not retried, the job is logged and dropped — per spec
// §4.1's "persistent failures leave the record is_classified=false ... and
// log a structured warning", the record remains searchable via fallback.
func (p *Pipeline) enqueueEmbed(job EmbedJob) {
	select {
	case p.embedQueue <- job:
	default:
		p.logger.Info("embed queue full, dropping job", "kind", job.Kind, "id", job.ID)
	}
}

func (p *Pipeline) enqueueClassify(job ClassifyJob) {
	select {
	case p.classifyQueue <- job:
	default:
		p.logger.Info("classify queue full, dropping job", "tool_id", job.ToolID)
	}
}

func toolEmbedText(name, description string) string {
	return name + " " + description
}

// spillDescriptor persists the raw descriptor an external server advertised
// for one capability, kept for diffing and replay across syncs (spec §3's
// object store component). Best effort: a write failure never blocks the
// sync from upserting the record itself.
func (p *Pipeline) spillDescriptor(ctx context.Context, serverID, kind, originalName string, desc any) {
	if p.objects == nil {
		return
	}
	data, err := json.Marshal(desc)
	if err != nil {
		p.logger.Error(err, "failed to marshal descriptor for object store", "server_id", serverID, "kind", kind, "name", originalName)
		return
	}
	key := objectstore.DescriptorKey(serverID, kind, originalName)
	if err := p.objects.Put(ctx, key, data, "application/json"); err != nil {
		p.logger.Error(err, "failed to spill descriptor to object store", "key", key)
	}
}

func (p *Pipeline) invalidateCaches(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateNamespace(ctx, cache.NamespaceToolList); err != nil {
		p.logger.Error(err, "failed to invalidate tool_list cache")
	}
	if err := p.cache.InvalidateNamespace(ctx, cache.NamespaceSearch); err != nil {
		p.logger.Error(err, "failed to invalidate search cache")
	}
}
