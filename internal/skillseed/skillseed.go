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

// Package skillseed loads the bundled skill-category taxonomy on first boot
// so hierarchical search (internal/search) has non-empty skill candidates
// before any classification job has run. The taxonomy mirrors the
// search/fetch/ai/utility/storage/database/filesystem/browser/communication/
// development/cloud/monitoring/productivity split common across the MCP
// ecosystem's service classifications.
package skillseed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/altairalabs/mcpagg/internal/skills"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

//go:embed taxonomy/categories.yaml
var bundledTaxonomy []byte

// Category is one bundled taxonomy entry, pre-normalization.
type Category struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	ParentDomain string   `yaml:"parent_domain"`
	Keywords     []string `yaml:"keywords"`
	Examples     []string `yaml:"examples"`
}

type taxonomy struct {
	Categories []Category `yaml:"categories"`
}

// Load parses the embedded taxonomy file. It is exported so callers (and
// tests) can validate the bundle without constructing a Seeder.
func Load() ([]Category, error) {
	var t taxonomy
	if err := yaml.Unmarshal(bundledTaxonomy, &t); err != nil {
		return nil, fmt.Errorf("skillseed: parse bundled taxonomy: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("skillseed: bundled taxonomy has no categories")
	}
	return t.Categories, nil
}

// SkillLister is the subset of postgres.SkillRepo the Seeder needs to decide
// whether seeding is necessary.
type SkillLister interface {
	List(ctx context.Context, orgID string) ([]*postgres.SkillCategory, error)
}

// Seeder loads the bundled taxonomy into the skill catalog on first boot.
type Seeder struct {
	repo    SkillLister
	catalog *skills.Catalog
	logger  logr.Logger
}

// New builds a Seeder.
func New(repo SkillLister, catalog *skills.Catalog, logger logr.Logger) *Seeder {
	return &Seeder{repo: repo, catalog: catalog, logger: logger.WithName("skillseed")}
}

// SeedIfEmpty loads the bundled taxonomy as global skill categories if the
// global skill_categories table is currently empty, so hierarchical search
// has candidates before the classifier has ever run. It is idempotent: a
// non-empty catalog is left untouched.
func (s *Seeder) SeedIfEmpty(ctx context.Context) (int, error) {
	existing, err := s.repo.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("skillseed: check existing catalog: %w", err)
	}
	if len(existing) > 0 {
		s.logger.V(1).Info("skill catalog already populated, skipping seed", "count", len(existing))
		return 0, nil
	}

	categories, err := Load()
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, cat := range categories {
		_, err := s.catalog.Create(ctx, skills.Input{
			ID:           cat.ID,
			Name:         cat.Name,
			Description:  cat.Description,
			Keywords:     cat.Keywords,
			Examples:     cat.Examples,
			ParentDomain: cat.ParentDomain,
			IsGlobal:     true,
		})
		if err != nil {
			s.logger.Error(err, "failed to seed skill category", "skill_id", cat.ID)
			continue
		}
		seeded++
	}

	s.logger.Info("seeded skill taxonomy", "count", seeded, "total", len(categories))
	return seeded, nil
}
