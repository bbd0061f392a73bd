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

// ToolRepo persists mcp.tools and the tool-skill assignment graph.
type ToolRepo struct {
	pool *pgxpool.Pool
}

const toolColumns = `id, name, description, input_schema, annotations, category, security_level,
	org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
	is_classified, is_active, created_at, updated_at`

func scanTool(row pgx.Row) (*Tool, error) {
	var t Tool
	var orgID, sourceServerID, primarySkillID *string

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.InputSchema, &t.Annotations, &t.Category, &t.SecurityLevel,
		&orgID, &t.IsGlobal, &sourceServerID, &t.OriginalName, &t.SkillIDs, &primarySkillID,
		&t.IsClassified, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan tool: %w", err)
	}
	t.OrgID = orgID
	t.SourceServerID = sourceServerID
	t.PrimarySkillID = primarySkillID
	t.InputSchema = rawOrEmptyObject(t.InputSchema)
	t.Annotations = rawOrEmptyObject(t.Annotations)
	if t.SkillIDs == nil {
		t.SkillIDs = []string{}
	}
	return &t, nil
}

// Create inserts a tool. Returns ErrNameConflict if the (name, scope) pair
// already exists.
func (r *ToolRepo) Create(ctx context.Context, t *Tool) (int64, error) {
	query := `INSERT INTO mcp.tools (
		name, description, input_schema, annotations, category, security_level,
		org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
		is_classified, is_active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		t.Name, t.Description, marshalJSONB(t.InputSchema), marshalJSONB(t.Annotations), t.Category, t.SecurityLevel,
		t.OrgID, t.IsGlobal, t.SourceServerID, t.OriginalName, emptyStrSlice(t.SkillIDs), t.PrimarySkillID,
		t.IsClassified, t.IsActive,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrNameConflict
		}
		return 0, fmt.Errorf("postgres: create tool: %w", err)
	}
	return id, nil
}

// Upsert inserts a tool or updates it in place by (name, scope), used by the
// sync pipeline so repeated discovery runs are idempotent.
func (r *ToolRepo) Upsert(ctx context.Context, t *Tool) (int64, error) {
	existing, err := r.GetByName(ctx, t.Name, t.OrgID)
	if err != nil && err != ErrNotFound {
		return 0, err
	}
	if existing == nil {
		return r.Create(ctx, t)
	}

	query := `UPDATE mcp.tools SET
		description=$2, input_schema=$3, annotations=$4, category=$5, security_level=$6,
		source_server_id=$7, original_name=$8, is_active=$9, updated_at=now()
	WHERE id=$1`
	_, err = r.pool.Exec(ctx, query,
		existing.ID, t.Description, marshalJSONB(t.InputSchema), marshalJSONB(t.Annotations), t.Category, t.SecurityLevel,
		t.SourceServerID, t.OriginalName, t.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: update tool: %w", err)
	}
	return existing.ID, nil
}

// GetByID fetches a single tool by primary key.
func (r *ToolRepo) GetByID(ctx context.Context, id int64) (*Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM mcp.tools WHERE id=$1`
	return scanTool(r.pool.QueryRow(ctx, query, id))
}

// GetByName fetches a tool by its namespaced name within a scope; orgID nil
// or empty string selects the global scope.
func (r *ToolRepo) GetByName(ctx context.Context, name string, orgID *string) (*Tool, error) {
	var query string
	var row pgx.Row
	if orgID == nil || *orgID == "" {
		query = `SELECT ` + toolColumns + ` FROM mcp.tools WHERE name=$1 AND is_global`
		row = r.pool.QueryRow(ctx, query, name)
	} else {
		query = `SELECT ` + toolColumns + ` FROM mcp.tools WHERE name=$1 AND org_id=$2 AND NOT is_global`
		row = r.pool.QueryRow(ctx, query, name, *orgID)
	}
	return scanTool(row)
}

// List returns active tools visible to orgID (global plus same-org), paginated.
func (r *ToolRepo) List(ctx context.Context, orgID string, limit, offset int) ([]*Tool, error) {
	qb := &queryBuilder{}
	tenantFilter(qb, orgID)
	qb.clauses = append(qb.clauses, "is_active")
	query := `SELECT ` + toolColumns + ` FROM mcp.tools WHERE ` + qb.clauses[0]
	for _, c := range qb.clauses[1:] {
		query += " AND " + c
	}
	query += " ORDER BY id ASC"
	query = qb.appendPagination(query, limit, offset)

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tools: %w", err)
	}
	defer rows.Close()

	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ByIDs fetches multiple tools by primary key, used by search Stage 3 schema
// enrichment.
func (r *ToolRepo) ByIDs(ctx context.Context, ids []int64) ([]*Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + toolColumns + ` FROM mcp.tools WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: tools by ids: %w", err)
	}
	defer rows.Close()

	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetInactive marks internal tools not seen in the latest sync as inactive.
func (r *ToolRepo) SetInactive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE mcp.tools SET is_active=false, updated_at=now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: deactivate tools: %w", err)
	}
	return nil
}

// DeleteByServer atomically deletes all tools owned by sourceServerID and
// returns the count removed, using a single CTE so the delete and count
// cannot race against a concurrent insert.
func (r *ToolRepo) DeleteByServer(ctx context.Context, sourceServerID string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.tools WHERE source_server_id=$1 RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete tools by server: %w", err)
	}
	return n, nil
}

// DeleteMissing atomically deletes tools owned by sourceServerID whose
// original_name is not in keep, returning the count removed. Used by
// sync_external to prune capabilities the remote no longer advertises.
func (r *ToolRepo) DeleteMissing(ctx context.Context, sourceServerID string, keep []string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.tools WHERE source_server_id=$1 AND NOT (original_name = ANY($2)) RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID, emptyStrSlice(keep)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete missing tools: %w", err)
	}
	return n, nil
}

// ReplaceAssignments transactionally resets source=llm assignments for a
// tool and writes the new set, updating the denormalized skill_ids and
// primary_skill_id on the tool row.
func (r *ToolRepo) ReplaceAssignments(ctx context.Context, toolID int64, assignments []ToolSkillAssignment, primarySkillID *string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM mcp.tool_skill_assignments WHERE tool_id=$1 AND source='llm'`, toolID); err != nil {
		return fmt.Errorf("postgres: clear llm assignments: %w", err)
	}

	skillIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		isPrimary := primarySkillID != nil && a.SkillID == *primarySkillID
		_, err := tx.Exec(ctx, `INSERT INTO mcp.tool_skill_assignments (tool_id, skill_id, confidence, is_primary, source)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (tool_id, skill_id) DO UPDATE SET confidence=$3, is_primary=$4, source=$5`,
			toolID, a.SkillID, a.Confidence, isPrimary, a.Source)
		if err != nil {
			return fmt.Errorf("postgres: insert assignment: %w", err)
		}
		skillIDs = append(skillIDs, a.SkillID)
	}

	_, err = tx.Exec(ctx, `UPDATE mcp.tools SET skill_ids=$2, primary_skill_id=$3, is_classified=true, updated_at=now() WHERE id=$1`,
		toolID, emptyStrSlice(skillIDs), primarySkillID)
	if err != nil {
		return fmt.Errorf("postgres: update tool classification: %w", err)
	}

	return tx.Commit(ctx)
}

func emptyStrSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
