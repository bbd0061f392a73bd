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

// PromptRepo persists mcp.prompts, a mirror of ToolRepo minus security level.
type PromptRepo struct {
	pool *pgxpool.Pool
}

const promptColumns = `id, name, description, input_schema, annotations, category,
	org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
	is_classified, is_active, created_at, updated_at`

func scanPrompt(row pgx.Row) (*Prompt, error) {
	var p Prompt
	var orgID, sourceServerID, primarySkillID *string

	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.InputSchema, &p.Annotations, &p.Category,
		&orgID, &p.IsGlobal, &sourceServerID, &p.OriginalName, &p.SkillIDs, &primarySkillID,
		&p.IsClassified, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan prompt: %w", err)
	}
	p.OrgID = orgID
	p.SourceServerID = sourceServerID
	p.PrimarySkillID = primarySkillID
	p.InputSchema = rawOrEmptyObject(p.InputSchema)
	p.Annotations = rawOrEmptyObject(p.Annotations)
	if p.SkillIDs == nil {
		p.SkillIDs = []string{}
	}
	return &p, nil
}

// Create inserts a prompt. Returns ErrNameConflict on a (name, scope) collision.
func (r *PromptRepo) Create(ctx context.Context, p *Prompt) (int64, error) {
	query := `INSERT INTO mcp.prompts (
		name, description, input_schema, annotations, category,
		org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
		is_classified, is_active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		p.Name, p.Description, marshalJSONB(p.InputSchema), marshalJSONB(p.Annotations), p.Category,
		p.OrgID, p.IsGlobal, p.SourceServerID, p.OriginalName, emptyStrSlice(p.SkillIDs), p.PrimarySkillID,
		p.IsClassified, p.IsActive,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrNameConflict
		}
		return 0, fmt.Errorf("postgres: create prompt: %w", err)
	}
	return id, nil
}

// GetByName fetches a prompt by its namespaced name within a scope.
func (r *PromptRepo) GetByName(ctx context.Context, name string, orgID *string) (*Prompt, error) {
	var row pgx.Row
	if orgID == nil || *orgID == "" {
		row = r.pool.QueryRow(ctx, `SELECT `+promptColumns+` FROM mcp.prompts WHERE name=$1 AND is_global`, name)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+promptColumns+` FROM mcp.prompts WHERE name=$1 AND org_id=$2 AND NOT is_global`, name, *orgID)
	}
	return scanPrompt(row)
}

// Upsert inserts a prompt or updates the existing one by (name, scope).
func (r *PromptRepo) Upsert(ctx context.Context, p *Prompt) (int64, error) {
	existing, err := r.GetByName(ctx, p.Name, p.OrgID)
	if err != nil && err != ErrNotFound {
		return 0, err
	}
	if existing == nil {
		return r.Create(ctx, p)
	}
	_, err = r.pool.Exec(ctx, `UPDATE mcp.prompts SET
		description=$2, input_schema=$3, annotations=$4, category=$5,
		source_server_id=$6, original_name=$7, is_active=$8, updated_at=now()
	WHERE id=$1`,
		existing.ID, p.Description, marshalJSONB(p.InputSchema), marshalJSONB(p.Annotations), p.Category,
		p.SourceServerID, p.OriginalName, p.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: update prompt: %w", err)
	}
	return existing.ID, nil
}

// List returns active prompts visible to orgID, paginated.
func (r *PromptRepo) List(ctx context.Context, orgID string, limit, offset int) ([]*Prompt, error) {
	qb := &queryBuilder{}
	tenantFilter(qb, orgID)
	query := `SELECT ` + promptColumns + ` FROM mcp.prompts WHERE ` + qb.clauses[0] + ` AND is_active ORDER BY id ASC`
	query = qb.appendPagination(query, limit, offset)

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prompts: %w", err)
	}
	defer rows.Close()

	var out []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetInactive marks internal prompts not seen in the latest sync as inactive.
func (r *PromptRepo) SetInactive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE mcp.prompts SET is_active=false, updated_at=now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: deactivate prompts: %w", err)
	}
	return nil
}

// DeleteByServer atomically deletes all prompts owned by sourceServerID,
// returning the count removed via a single delete-with-CTE.
func (r *PromptRepo) DeleteByServer(ctx context.Context, sourceServerID string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.prompts WHERE source_server_id=$1 RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete prompts by server: %w", err)
	}
	return n, nil
}

// DeleteMissing atomically deletes prompts owned by sourceServerID whose
// original_name is not in keep.
func (r *PromptRepo) DeleteMissing(ctx context.Context, sourceServerID string, keep []string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.prompts WHERE source_server_id=$1 AND NOT (original_name = ANY($2)) RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID, emptyStrSlice(keep)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete missing prompts: %w", err)
	}
	return n, nil
}
