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
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SkillRepo persists the mcp.skill_categories taxonomy.
type SkillRepo struct {
	pool *pgxpool.Pool
}

const skillColumns = `id, name, description, keywords, examples, parent_domain, tool_count,
	org_id, is_global, is_active, created_at, updated_at`

func scanSkill(row pgx.Row) (*SkillCategory, error) {
	var s SkillCategory
	var orgID *string
	var parentDomain *string

	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.Keywords, &s.Examples, &parentDomain, &s.ToolCount,
		&orgID, &s.IsGlobal, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan skill: %w", err)
	}
	s.OrgID = orgID
	s.ParentDomain = stringOrEmpty(parentDomain)
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	if s.Examples == nil {
		s.Examples = []string{}
	}
	return &s, nil
}

// Create inserts a skill category. id must already be normalized and
// keywords already lowercased/deduplicated by the caller (internal/skills).
func (r *SkillRepo) Create(ctx context.Context, s *SkillCategory) error {
	query := `INSERT INTO mcp.skill_categories (
		id, name, description, keywords, examples, parent_domain, org_id, is_global, is_active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Name, s.Description, emptyStrSlice(s.Keywords), emptyStrSlice(s.Examples),
		nullString(s.ParentDomain), s.OrgID, s.IsGlobal, s.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameConflict
		}
		return fmt.Errorf("postgres: create skill: %w", err)
	}
	return nil
}

// Update rewrites a skill category's mutable fields.
func (r *SkillRepo) Update(ctx context.Context, s *SkillCategory) error {
	query := `UPDATE mcp.skill_categories SET
		name=$2, description=$3, keywords=$4, examples=$5, parent_domain=$6, updated_at=now()
	WHERE id=$1 AND (org_id=$7 OR ($7 IS NULL AND org_id IS NULL))`

	res, err := r.pool.Exec(ctx, query,
		s.ID, s.Name, s.Description, emptyStrSlice(s.Keywords), emptyStrSlice(s.Examples), nullString(s.ParentDomain), s.OrgID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update skill: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a skill category: it is removed from search
// candidacy but historical tool-skill assignments are preserved.
func (r *SkillRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `UPDATE mcp.skill_categories SET is_active=false, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate skill: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches one skill category.
func (r *SkillRepo) GetByID(ctx context.Context, id string) (*SkillCategory, error) {
	return scanSkill(r.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM mcp.skill_categories WHERE id=$1`, id))
}

// List returns active skill categories visible to orgID.
func (r *SkillRepo) List(ctx context.Context, orgID string) ([]*SkillCategory, error) {
	qb := &queryBuilder{}
	tenantFilter(qb, orgID)
	query := `SELECT ` + skillColumns + ` FROM mcp.skill_categories WHERE ` + qb.clauses[0] + ` AND is_active ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list skills: %w", err)
	}
	defer rows.Close()

	var out []*SkillCategory
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExistingActive filters ids down to those that exist, are active, and are
// visible to orgID (global or same org) — used by the Classifier to drop
// hallucinated or out-of-scope skill assignments.
func (r *SkillRepo) ExistingActive(ctx context.Context, ids []string, orgID string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	qb := &queryBuilder{}
	qb.add("id = ANY($?)", ids)
	tenantFilter(qb, orgID)
	query := `SELECT id FROM mcp.skill_categories WHERE is_active` + qb.where()

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: filter active skills: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecomputeToolCount refreshes the denormalized tool_count cache for one skill.
func (r *SkillRepo) RecomputeToolCount(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE mcp.skill_categories SET tool_count = (
		SELECT COUNT(*) FROM mcp.tool_skill_assignments WHERE skill_id=$1
	) WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: recompute tool_count: %w", err)
	}
	return nil
}

// ToolsBySkill lists tool ids assigned to a skill, used by the Skills REST
// "list tools by skill" endpoint.
func (r *SkillRepo) ToolsBySkill(ctx context.Context, skillID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT tool_id FROM mcp.tool_skill_assignments WHERE skill_id=$1 ORDER BY tool_id ASC`, skillID)
	if err != nil {
		return nil, fmt.Errorf("postgres: tools by skill: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
