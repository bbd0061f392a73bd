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

// Package skills owns the skill taxonomy's invariants (id format, keyword
// normalization, description length, tenant scoping) and keeps the skills
// vector collection in step with every create/update/deactivate.
package skills

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/embedclient"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ErrInvalidID is returned when a skill id fails the ^[a-z][a-z0-9_-]*$ format.
var ErrInvalidID = errors.New("skills: id must match ^[a-z][a-z0-9_-]*$")

// ErrDescriptionTooShort is returned when a skill description is under the 10-char minimum.
var ErrDescriptionTooShort = errors.New("skills: description must be at least 10 characters")

// Catalog is the Skill Catalog component: CRUD over skill categories with
// the embedding side effects spec §4.2 requires.
type Catalog struct {
	repo   *postgres.SkillRepo
	vec    *vector.RetryingClient
	embed  embedclient.Client
	logger logr.Logger
}

// New builds a Catalog.
func New(repo *postgres.SkillRepo, vec *vector.RetryingClient, embed embedclient.Client, logger logr.Logger) *Catalog {
	return &Catalog{repo: repo, vec: vec, embed: embed, logger: logger.WithName("skills")}
}

// Input describes a caller-supplied skill category, pre-normalization.
type Input struct {
	ID           string
	Name         string
	Description  string
	Keywords     []string
	Examples     []string
	ParentDomain string
	OrgID        *string
	IsGlobal     bool
}

func normalizeKeywords(kws []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range kws {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validate(in Input) error {
	if !idPattern.MatchString(in.ID) {
		return fmt.Errorf("%w: got %q", ErrInvalidID, in.ID)
	}
	if len(strings.TrimSpace(in.Description)) < 10 {
		return ErrDescriptionTooShort
	}
	return nil
}

// embeddingText is the deterministic embedding input for a skill: name +
// description + keywords, per spec §4.2.
func embeddingText(name, description string, keywords []string) string {
	return name + " " + description + " " + strings.Join(keywords, " ")
}

// Create inserts a new skill category and embeds it into the skills vector collection.
func (c *Catalog) Create(ctx context.Context, in Input) (*postgres.SkillCategory, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	keywords := normalizeKeywords(in.Keywords)

	s := &postgres.SkillCategory{
		ID:           in.ID,
		Name:         in.Name,
		Description:  in.Description,
		Keywords:     keywords,
		Examples:     in.Examples,
		ParentDomain: in.ParentDomain,
		OrgID:        in.OrgID,
		IsGlobal:     in.IsGlobal,
		IsActive:     true,
	}
	if err := c.repo.Create(ctx, s); err != nil {
		return nil, err
	}

	if err := c.reembed(ctx, s); err != nil {
		// The relational write already committed; the vector write is
		// best-effort and retried by RetryingClient, so a final failure here
		// is logged rather than rolled back (spec §5 shared-resource policy).
		c.logger.Error(err, "failed to embed new skill", "skill_id", s.ID)
	}
	return s, nil
}

// Update rewrites a skill category's mutable fields and re-embeds it.
func (c *Catalog) Update(ctx context.Context, in Input) (*postgres.SkillCategory, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	keywords := normalizeKeywords(in.Keywords)

	s := &postgres.SkillCategory{
		ID:           in.ID,
		Name:         in.Name,
		Description:  in.Description,
		Keywords:     keywords,
		Examples:     in.Examples,
		ParentDomain: in.ParentDomain,
		OrgID:        in.OrgID,
	}
	if err := c.repo.Update(ctx, s); err != nil {
		return nil, err
	}

	if err := c.reembed(ctx, s); err != nil {
		c.logger.Error(err, "failed to re-embed updated skill", "skill_id", s.ID)
	}
	return s, nil
}

// Deactivate soft-deletes a skill, removing it from search candidacy while
// preserving historical tool-skill assignments, and drops its vector point.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	if err := c.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	pointID := vector.SkillPointID(id)
	if err := c.vec.Delete(ctx, vector.CollectionSkills, []int64{pointID}); err != nil {
		c.logger.Error(err, "failed to remove deactivated skill from vector index", "skill_id", id)
	}
	return nil
}

func (c *Catalog) reembed(ctx context.Context, s *postgres.SkillCategory) error {
	text := embeddingText(s.Name, s.Description, s.Keywords)
	vec, err := c.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("skills: embed %s: %w", s.ID, err)
	}

	pointID := vector.SkillPointID(s.ID)
	payload := map[string]any{
		"skill_id":  s.ID,
		"org_id":    s.OrgID,
		"is_global": s.IsGlobal,
	}
	return c.vec.Upsert(ctx, vector.CollectionSkills, []int64{pointID}, [][]float32{vec}, []map[string]any{payload})
}

// Get fetches a single skill category.
func (c *Catalog) Get(ctx context.Context, id string) (*postgres.SkillCategory, error) {
	return c.repo.GetByID(ctx, id)
}

// List returns active skill categories visible to orgID.
func (c *Catalog) List(ctx context.Context, orgID string) ([]*postgres.SkillCategory, error) {
	return c.repo.List(ctx, orgID)
}

// ToolsBySkill lists tool ids assigned to a skill.
func (c *Catalog) ToolsBySkill(ctx context.Context, skillID string) ([]int64, error) {
	return c.repo.ToolsBySkill(ctx, skillID)
}
