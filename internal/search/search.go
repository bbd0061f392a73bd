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

// Package search implements the two-stage hierarchical skill→tool search
// engine described in spec §4.4: skill matching against the skills vector
// collection, followed by tool search scoped to the matched skills (or a
// direct fallback when no skill clears the threshold), with schema
// enrichment and tie-broken score normalization.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/embedclient"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
)

// Strategy selects the search algorithm.
type Strategy string

const (
	StrategyHierarchical Strategy = "hierarchical"
	StrategyDirect       Strategy = "direct"
)

// DefaultSkillThreshold is the minimum Stage 1 skill score retained, per
// spec §4.4.
const DefaultSkillThreshold = 0.40

// ItemType narrows Stage 2 to one catalog entity kind, mirroring
// postgres.ItemKind; empty means all three.
type ItemType string

const (
	ItemTypeAny      ItemType = ""
	ItemTypeTool     ItemType = "tool"
	ItemTypePrompt   ItemType = "prompt"
	ItemTypeResource ItemType = "resource"
)

// Query is one search request.
type Query struct {
	Text           string
	OrgID          string
	ItemType       ItemType
	ServerID       string
	Strategy       Strategy
	Limit          int
	ScoreThreshold float32
	SkillThreshold float32
}

// SkillMatch is one skill that cleared Stage 1, carried into the response
// metadata.
type SkillMatch struct {
	SkillID string
	Score   float32
}

// Result is one scored catalog item returned from Stage 2, enriched with
// its input schema in Stage 3 when it is a tool.
type Result struct {
	ItemID       int64
	ItemType     ItemType
	Name         string
	Description  string
	Score        float32
	PrimarySkill bool
	InputSchema  []byte
}

// Metadata describes how the search was executed, per spec §4.4's "strategy
// chosen, skills matched with their scores, fallback flag, measured
// latency".
type Metadata struct {
	Strategy      Strategy
	SkillsMatched []SkillMatch
	FallbackUsed  bool
	LatencyMS     int64
}

// Response is the full search result.
type Response struct {
	Results  []Result
	Metadata Metadata
}

// Engine is the Hierarchical Search Engine.
type Engine struct {
	vec      *vector.RetryingClient
	embed    embedclient.Client
	toolRepo *postgres.ToolRepo
	logger   logr.Logger
}

// New builds an Engine.
func New(vec *vector.RetryingClient, embed embedclient.Client, toolRepo *postgres.ToolRepo, logger logr.Logger) *Engine {
	return &Engine{vec: vec, embed: embed, toolRepo: toolRepo, logger: logger.WithName("search")}
}

// Search runs the configured strategy and returns the enriched, tie-broken
// result set with execution metadata.
func (e *Engine) Search(ctx context.Context, q Query) (Response, error) {
	start := time.Now()

	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.SkillThreshold == 0 {
		q.SkillThreshold = DefaultSkillThreshold
	}
	if q.Strategy == "" {
		q.Strategy = StrategyHierarchical
	}

	embedding, err := e.embed.Embed(ctx, q.Text)
	if err != nil {
		return Response{}, fmt.Errorf("search: embed query: %w", err)
	}

	var (
		skillsMatched []SkillMatch
		fallbackUsed  bool
		hits          []vector.SearchHit
	)

	tenantFilter := vector.Filter{OrgID: q.OrgID, ServerID: q.ServerID, ItemType: string(q.ItemType)}

	if q.Strategy == StrategyDirect {
		fallbackUsed = false
		hits, err = e.vec.Search(ctx, vector.CollectionTools, embedding, tenantFilter, q.Limit)
		if err != nil {
			return Response{}, fmt.Errorf("search: direct tool search: %w", err)
		}
	} else {
		skillsMatched, err = e.stage1Skills(ctx, embedding, q)
		if err != nil {
			return Response{}, fmt.Errorf("search: stage 1 skill match: %w", err)
		}

		if len(skillsMatched) > 0 {
			skillIDs := make([]string, len(skillsMatched))
			for i, s := range skillsMatched {
				skillIDs[i] = s.SkillID
			}
			scopedFilter := tenantFilter
			scopedFilter.SkillIDs = skillIDs
			hits, err = e.vec.Search(ctx, vector.CollectionTools, embedding, scopedFilter, q.Limit)
			if err != nil {
				return Response{}, fmt.Errorf("search: stage 2 scoped tool search: %w", err)
			}
		} else {
			fallbackUsed = true
			hits, err = e.vec.Search(ctx, vector.CollectionTools, embedding, tenantFilter, q.Limit)
			if err != nil {
				return Response{}, fmt.Errorf("search: stage 2 fallback tool search: %w", err)
			}
		}
	}

	primarySet := make(map[string]bool, len(skillsMatched))
	for _, s := range skillsMatched {
		primarySet[s.SkillID] = true
	}

	results := e.stage3Enrich(ctx, hits, q.ScoreThreshold, primarySet)
	sortResults(results)

	return Response{
		Results: results,
		Metadata: Metadata{
			Strategy:      q.Strategy,
			SkillsMatched: skillsMatched,
			FallbackUsed:  fallbackUsed,
			LatencyMS:     time.Since(start).Milliseconds(),
		},
	}, nil
}

// stage1Skills embeds against the skills collection, keeps hits at or above
// the threshold, and tie-breaks (score desc, skill id asc).
func (e *Engine) stage1Skills(ctx context.Context, embedding []float32, q Query) ([]SkillMatch, error) {
	filter := vector.Filter{OrgID: q.OrgID}
	hits, err := e.vec.Search(ctx, vector.CollectionSkills, embedding, filter, 50)
	if err != nil {
		return nil, err
	}
	return filterSkillHits(hits, q.SkillThreshold)
}

// filterSkillHits is the pure Stage 1 retain/tie-break rule, split out so it
// can be exercised without a live vector store.
func filterSkillHits(hits []vector.SearchHit, threshold float32) ([]SkillMatch, error) {
	var matches []SkillMatch
	for _, h := range hits {
		score := clampScore(h.Score)
		if score < threshold {
			continue
		}
		skillID, _ := h.Payload["skill_id"].(string)
		if skillID == "" {
			return nil, fmt.Errorf("search: skill hit missing skill_id payload field")
		}
		matches = append(matches, SkillMatch{SkillID: skillID, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SkillID < matches[j].SkillID
	})
	return matches, nil
}

// stage3Enrich converts raw vector hits to Results, dropping anything below
// score_threshold and loading each tool's input_schema. primarySet holds the
// ids of skills that matched in Stage 1, so PrimarySkill reflects "this
// tool's primary skill is among the matched skills" per spec §4.4's
// tie-break rule, not merely "this tool has some primary skill".
func (e *Engine) stage3Enrich(ctx context.Context, hits []vector.SearchHit, scoreThreshold float32, primarySet map[string]bool) []Result {
	var results []Result
	var toolIDs []int64
	for _, h := range hits {
		score := clampScore(h.Score)
		if score < scoreThreshold {
			continue
		}
		itemID, _ := h.Payload["item_id"].(float64)
		itemType, _ := h.Payload["item_type"].(string)
		if ItemType(itemType) == ItemTypeTool {
			toolIDs = append(toolIDs, int64(itemID))
		}
		results = append(results, Result{
			ItemID:   int64(itemID),
			ItemType: ItemType(itemType),
			Score:    score,
		})
	}

	if len(toolIDs) > 0 {
		tools, err := e.toolRepo.ByIDs(ctx, toolIDs)
		if err != nil {
			e.logger.Error(err, "stage 3 schema enrichment failed, returning unenriched results")
		} else {
			byID := make(map[int64]*postgres.Tool, len(tools))
			for _, t := range tools {
				byID[t.ID] = t
			}
			for i := range results {
				if results[i].ItemType != ItemTypeTool {
					continue
				}
				t, ok := byID[results[i].ItemID]
				if !ok {
					continue
				}
				results[i].Name = t.Name
				results[i].Description = t.Description
				results[i].InputSchema = t.InputSchema
				results[i].PrimarySkill = toolIsPrimaryMatched(t.PrimarySkillID, primarySet)
			}
		}
	}
	return results
}

// toolIsPrimaryMatched reports whether a tool's primary skill is one of the
// skills Stage 1 actually matched — spec §4.4's tie-break is "primary-skill
// preferred over non-primary among skills that matched", not merely "tool
// has some primary skill assigned somewhere".
func toolIsPrimaryMatched(primarySkillID *string, matchedSkills map[string]bool) bool {
	return primarySkillID != nil && matchedSkills[*primarySkillID]
}

// sortResults applies the tie-break rules: score desc, primary-skill
// preferred, then item id ascending.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].PrimarySkill != results[j].PrimarySkill {
			return results[i].PrimarySkill
		}
		return results[i].ItemID < results[j].ItemID
	})
}

// clampScore clamps cosine similarity into [0,1], per spec §4.4's score
// normalization rule.
func clampScore(score float32) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
