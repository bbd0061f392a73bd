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

package sync

import (
	"context"
	"fmt"

	"github.com/altairalabs/mcpagg/internal/registry"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// Result summarizes one sync run, returned to callers (and surfaced on the
// aggregator REST connect endpoint) as the tool/prompt/resource delta.
type Result struct {
	ToolsUpserted     int
	PromptsUpserted   int
	ResourcesUpserted int
	ToolsRemoved      int64
	PromptsRemoved    int64
	ResourcesRemoved  int64
}

// SyncInternal scans the process's declared tools/prompts/resources, upserts
// them by name, and marks internal tools not seen this run inactive.
// Internal prompts and resources not seen this run are left active.
// Internal records carry no source_server_id.
func (p *Pipeline) SyncInternal(ctx context.Context, source InternalSource, orgID *string, isGlobal bool) (Result, error) {
	var res Result

	toolDescs, err := source.ListTools(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list internal tools: %w", err)
	}
	seenTools := make([]string, 0, len(toolDescs))
	for _, d := range toolDescs {
		t := &postgres.Tool{
			Catalog: postgres.Catalog{
				Name: d.OriginalName, Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, OriginalName: d.OriginalName, IsActive: true,
			},
			InputSchema:   d.InputSchema,
			Annotations:   d.Annotations,
			SecurityLevel: d.Security,
		}
		id, err := p.registry.UpsertTool(ctx, t)
		if err != nil {
			p.logger.Error(err, "failed to upsert internal tool", "name", d.OriginalName)
			continue
		}
		res.ToolsUpserted++
		seenTools = append(seenTools, d.OriginalName)
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemTool, ID: id, Text: toolEmbedText(d.OriginalName, d.Description)})
		p.enqueueClassify(ClassifyJob{ToolID: id})
	}
	if err := p.deactivateMissingInternal(ctx, orgID, seenTools); err != nil {
		p.logger.Error(err, "failed to deactivate stale internal tools")
	}

	promptDescs, err := source.ListPrompts(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list internal prompts: %w", err)
	}
	for _, d := range promptDescs {
		pr := &postgres.Prompt{
			Catalog: postgres.Catalog{
				Name: d.OriginalName, Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, OriginalName: d.OriginalName, IsActive: true,
			},
			InputSchema: d.InputSchema,
			Annotations: d.Annotations,
		}
		id, err := p.registry.UpsertPrompt(ctx, pr)
		if err != nil {
			p.logger.Error(err, "failed to upsert internal prompt", "name", d.OriginalName)
			continue
		}
		res.PromptsUpserted++
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemPrompt, ID: id, Text: toolEmbedText(d.OriginalName, d.Description)})
	}

	resourceDescs, err := source.ListResources(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list internal resources: %w", err)
	}
	for _, d := range resourceDescs {
		rsc := &postgres.Resource{
			Catalog: postgres.Catalog{
				Name: d.OriginalName, Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, OriginalName: d.OriginalName, IsActive: true,
			},
			URI: d.URI, Annotations: d.Annotations, Owner: d.Owner, AllowedUsers: d.AllowedUsers,
		}
		id, err := p.registry.UpsertResource(ctx, rsc)
		if err != nil {
			p.logger.Error(err, "failed to upsert internal resource", "name", d.OriginalName)
			continue
		}
		res.ResourcesUpserted++
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemResource, ID: id, Text: toolEmbedText(d.OriginalName, d.Description)})
	}

	p.invalidateCaches(ctx)
	return res, nil
}

func (p *Pipeline) deactivateMissingInternal(ctx context.Context, orgID *string, seen []string) error {
	org := ""
	if orgID != nil {
		org = *orgID
	}
	existing, err := p.toolRepo.List(ctx, org, 100000, 0)
	if err != nil {
		return err
	}
	seenSet := make(map[string]bool, len(seen))
	for _, n := range seen {
		seenSet[n] = true
	}
	var stale []int64
	for _, t := range existing {
		if t.SourceServerID != nil && *t.SourceServerID != "" {
			continue // owned by an external server, not this internal scan
		}
		if !seenSet[t.OriginalName] {
			stale = append(stale, t.ID)
		}
	}
	return p.toolRepo.SetInactive(ctx, stale)
}

// SyncExternal is invoked when an external session becomes CONNECTED: it
// lists the server's capabilities, upserts namespaced records, and deletes
// records the server no longer advertises, per spec §4.1's external-sync
// algorithm.
func (p *Pipeline) SyncExternal(ctx context.Context, serverID, serverName string, orgID *string, isGlobal bool, lister Lister) (Result, error) {
	var res Result

	toolDescs, err := lister.ListTools(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list external tools: %w", err)
	}
	keepTools := make([]string, 0, len(toolDescs))
	for _, d := range toolDescs {
		p.spillDescriptor(ctx, serverID, "tool", d.OriginalName, d)
		t := &postgres.Tool{
			Catalog: postgres.Catalog{
				Name: registry.NamespacedName(serverName, d.OriginalName), Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, SourceServerID: &serverID, OriginalName: d.OriginalName, IsActive: true,
			},
			InputSchema:   d.InputSchema,
			Annotations:   d.Annotations,
			SecurityLevel: d.Security,
		}
		id, err := p.registry.UpsertTool(ctx, t)
		if err != nil {
			p.logger.Error(err, "failed to upsert external tool", "server", serverName, "name", d.OriginalName)
			continue
		}
		res.ToolsUpserted++
		keepTools = append(keepTools, d.OriginalName)
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemTool, ID: id, Text: toolEmbedText(t.Name, d.Description)})
		p.enqueueClassify(ClassifyJob{ToolID: id})
	}
	removedTools, err := p.toolRepo.DeleteMissing(ctx, serverID, keepTools)
	if err != nil {
		p.logger.Error(err, "failed to prune missing external tools", "server", serverName)
	}
	res.ToolsRemoved = removedTools

	promptDescs, err := lister.ListPrompts(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list external prompts: %w", err)
	}
	keepPrompts := make([]string, 0, len(promptDescs))
	for _, d := range promptDescs {
		p.spillDescriptor(ctx, serverID, "prompt", d.OriginalName, d)
		pr := &postgres.Prompt{
			Catalog: postgres.Catalog{
				Name: registry.NamespacedName(serverName, d.OriginalName), Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, SourceServerID: &serverID, OriginalName: d.OriginalName, IsActive: true,
			},
			InputSchema: d.InputSchema,
			Annotations: d.Annotations,
		}
		id, err := p.registry.UpsertPrompt(ctx, pr)
		if err != nil {
			p.logger.Error(err, "failed to upsert external prompt", "server", serverName, "name", d.OriginalName)
			continue
		}
		res.PromptsUpserted++
		keepPrompts = append(keepPrompts, d.OriginalName)
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemPrompt, ID: id, Text: toolEmbedText(pr.Name, d.Description)})
	}
	removedPrompts, err := p.promptRepo.DeleteMissing(ctx, serverID, keepPrompts)
	if err != nil {
		p.logger.Error(err, "failed to prune missing external prompts", "server", serverName)
	}
	res.PromptsRemoved = removedPrompts

	resourceDescs, err := lister.ListResources(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list external resources: %w", err)
	}
	keepResources := make([]string, 0, len(resourceDescs))
	for _, d := range resourceDescs {
		p.spillDescriptor(ctx, serverID, "resource", d.OriginalName, d)
		rsc := &postgres.Resource{
			Catalog: postgres.Catalog{
				Name: registry.NamespacedName(serverName, d.OriginalName), Description: d.Description, Category: d.Category,
				OrgID: orgID, IsGlobal: isGlobal, SourceServerID: &serverID, OriginalName: d.OriginalName, IsActive: true,
			},
			URI: d.URI, Annotations: d.Annotations, Owner: d.Owner, AllowedUsers: d.AllowedUsers,
		}
		id, err := p.registry.UpsertResource(ctx, rsc)
		if err != nil {
			p.logger.Error(err, "failed to upsert external resource", "server", serverName, "name", d.OriginalName)
			continue
		}
		res.ResourcesUpserted++
		keepResources = append(keepResources, d.OriginalName)
		p.enqueueEmbed(EmbedJob{Kind: postgres.ItemResource, ID: id, Text: toolEmbedText(rsc.Name, d.Description)})
	}
	removedResources, err := p.resRepo.DeleteMissing(ctx, serverID, keepResources)
	if err != nil {
		p.logger.Error(err, "failed to prune missing external resources", "server", serverName)
	}
	res.ResourcesRemoved = removedResources

	p.invalidateCaches(ctx)
	return res, nil
}
