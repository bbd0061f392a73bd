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

package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/classifyclient"
	"github.com/altairalabs/mcpagg/internal/store/objectstore"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
)

// ClassifierConfig carries the tunables spec §4.3/§9 gives the classifier.
type ClassifierConfig struct {
	DropBelow        float64 // default 0.30
	PrimaryThreshold float64 // default 0.50
}

// DefaultClassifierConfig matches the documented defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{DropBelow: 0.30, PrimaryThreshold: 0.50}
}

// Classifier assigns tools to skills via the external classification
// capability, then persists and indexes the result.
type Classifier struct {
	skillRepo *postgres.SkillRepo
	toolRepo  *postgres.ToolRepo
	classify  classifyclient.Client
	vec       *vector.RetryingClient
	objects   objectstore.Store
	cfg       ClassifierConfig
	logger    logr.Logger
}

// NewClassifier builds a Classifier. objects is optional: when nil, the
// classification audit record (spec §5.4) is skipped rather than recorded.
func NewClassifier(skillRepo *postgres.SkillRepo, toolRepo *postgres.ToolRepo, classify classifyclient.Client, vec *vector.RetryingClient, objects objectstore.Store, cfg ClassifierConfig, logger logr.Logger) *Classifier {
	return &Classifier{skillRepo: skillRepo, toolRepo: toolRepo, classify: classify, vec: vec, objects: objects, cfg: cfg, logger: logger.WithName("classifier")}
}

// scope identifies the tenant visibility a tool's candidate skills must share.
type scope struct {
	orgID string
}

// ClassifyTool runs the tool descriptor through the classification capability
// and writes the resulting skill assignments, per spec §4.3.
func (c *Classifier) ClassifyTool(ctx context.Context, tool *postgres.Tool) error {
	orgID := ""
	if tool.OrgID != nil {
		orgID = *tool.OrgID
	}

	candidates, err := c.candidateSkillIDs(ctx, orgID)
	if err != nil {
		return fmt.Errorf("classifier: list candidate skills: %w", err)
	}
	if len(candidates) == 0 {
		c.logger.Info("no candidate skills in scope, leaving tool unclassified", "tool_id", tool.ID)
		return nil
	}

	desc := classifyclient.Descriptor{
		Name:               tool.OriginalName,
		Description:        tool.Description,
		InputSchemaSummary: summarizeSchema(tool.InputSchema),
	}
	raw, err := c.classify.Classify(ctx, desc, candidates)
	if err != nil {
		return fmt.Errorf("classifier: classify %s: %w", tool.Name, err)
	}

	// Accept only skills that still exist and are active in scope — the
	// model may hallucinate an id or one may have been deactivated since
	// the candidate list was built.
	var proposedIDs []string
	for _, a := range raw {
		proposedIDs = append(proposedIDs, a.SkillID)
	}
	valid, err := c.skillRepo.ExistingActive(ctx, proposedIDs, orgID)
	if err != nil {
		return fmt.Errorf("classifier: validate assignments: %w", err)
	}
	validSet := map[string]bool{}
	for _, id := range valid {
		validSet[id] = true
	}

	assignments, primary := selectAssignments(tool.ID, raw, validSet, c.cfg)

	if err := c.toolRepo.ReplaceAssignments(ctx, tool.ID, assignments, primary); err != nil {
		return fmt.Errorf("classifier: persist assignments: %w", err)
	}

	c.recordClassificationArtifact(ctx, tool.ID, desc, candidates, raw)

	return c.updateToolPayload(ctx, tool, assignments, primary)
}

// recordClassificationArtifact spills the full (descriptor, candidates,
// ranked assignments) triple to the object store under the tool's
// classification key, per spec §5.4: the relational row only ever carries
// the assignment rows themselves, not the audit trail behind them. Best
// effort — a failure here never blocks classification from completing.
func (c *Classifier) recordClassificationArtifact(ctx context.Context, toolID int64, desc classifyclient.Descriptor, candidates []string, raw []classifyclient.Assignment) {
	if c.objects == nil {
		return
	}
	artifact := struct {
		Descriptor classifyclient.Descriptor    `json:"descriptor"`
		Candidates []string                     `json:"candidate_skill_ids"`
		Ranked     []classifyclient.Assignment  `json:"ranked_assignments"`
	}{Descriptor: desc, Candidates: candidates, Ranked: raw}

	data, err := json.Marshal(artifact)
	if err != nil {
		c.logger.Error(err, "failed to marshal classification artifact", "tool_id", toolID)
		return
	}
	key := objectstore.ClassificationKey(toolID)
	if err := c.objects.Put(ctx, key, data, "application/json"); err != nil {
		c.logger.Error(err, "failed to record classification artifact", "tool_id", toolID, "key", key)
	}
}

// selectAssignments applies the drop-threshold, in-scope filter, the
// top-3 cap, and the primary-selection rule (spec §4.3) to a raw ranked
// classification result. Split out from ClassifyTool so the selection rule
// can be unit tested without a database.
func selectAssignments(toolID int64, raw []classifyclient.Assignment, validSet map[string]bool, cfg ClassifierConfig) ([]postgres.ToolSkillAssignment, *string) {
	var assignments []postgres.ToolSkillAssignment
	bestConfidence := -1.0
	var bestSkill string

	for _, a := range raw {
		if !validSet[a.SkillID] {
			continue
		}
		if a.Confidence < cfg.DropBelow {
			continue
		}
		assignments = append(assignments, postgres.ToolSkillAssignment{
			ToolID:     toolID,
			SkillID:    a.SkillID,
			Confidence: a.Confidence,
			Source:     postgres.SourceLLM,
		})
		if a.Confidence > bestConfidence {
			bestConfidence = a.Confidence
			bestSkill = a.SkillID
		}
	}
	if len(assignments) > 3 {
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].Confidence > assignments[j].Confidence })
		assignments = assignments[:3]
	}

	var primary *string
	if bestConfidence >= cfg.PrimaryThreshold {
		for i := range assignments {
			assignments[i].IsPrimary = assignments[i].SkillID == bestSkill
		}
		primary = &bestSkill
	}
	return assignments, primary
}

// candidateSkillIDs lists every active skill id visible to the tool's scope.
func (c *Classifier) candidateSkillIDs(ctx context.Context, orgID string) ([]string, error) {
	cats, err := c.skillRepo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(cats))
	for i, s := range cats {
		ids[i] = s.ID
	}
	return ids, nil
}

// updateToolPayload pushes skill_ids onto the tool's existing vector point
// without re-embedding: spec §9's resolved Open Question is payload-only
// update, since the tool's text hasn't changed, just its classification.
func (c *Classifier) updateToolPayload(ctx context.Context, tool *postgres.Tool, assignments []postgres.ToolSkillAssignment, primary *string) error {
	skillIDs := make([]string, len(assignments))
	for i, a := range assignments {
		skillIDs[i] = a.SkillID
	}

	payload := map[string]any{
		"tool_id":          tool.ID,
		"name":             tool.Name,
		"org_id":           tool.OrgID,
		"is_global":        tool.IsGlobal,
		"item_type":        "tool",
		"source_server_id": tool.SourceServerID,
		"skill_ids":        skillIDs,
		"primary_skill_id": primary,
	}
	// A nil vector on an existing point is a payload-only update: the vector
	// store merges payloads rather than re-embedding, matching spec §9's
	// resolved Open Question (update payload, don't re-embed, on reclassification).
	return c.vec.Upsert(ctx, vector.CollectionTools, []int64{tool.ID}, [][]float32{nil}, []map[string]any{payload})
}

func summarizeSchema(schema []byte) string {
	if len(schema) == 0 {
		return ""
	}
	const maxLen = 500
	if len(schema) > maxLen {
		return string(schema[:maxLen])
	}
	return string(schema)
}
