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

// ResourceRepo persists mcp.resources, a mirror of ToolRepo that carries a
// URI/owner/allowed-users access set in place of a security level.
type ResourceRepo struct {
	pool *pgxpool.Pool
}

const resourceColumns = `id, name, description, uri, annotations, category, owner, allowed_users,
	org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
	is_classified, is_active, created_at, updated_at`

func scanResource(row pgx.Row) (*Resource, error) {
	var res Resource
	var orgID, sourceServerID, primarySkillID *string

	err := row.Scan(
		&res.ID, &res.Name, &res.Description, &res.URI, &res.Annotations, &res.Category, &res.Owner, &res.AllowedUsers,
		&orgID, &res.IsGlobal, &sourceServerID, &res.OriginalName, &res.SkillIDs, &primarySkillID,
		&res.IsClassified, &res.IsActive, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan resource: %w", err)
	}
	res.OrgID = orgID
	res.SourceServerID = sourceServerID
	res.PrimarySkillID = primarySkillID
	res.Annotations = rawOrEmptyObject(res.Annotations)
	if res.SkillIDs == nil {
		res.SkillIDs = []string{}
	}
	if res.AllowedUsers == nil {
		res.AllowedUsers = []string{}
	}
	return &res, nil
}

// Create inserts a resource. Returns ErrNameConflict on a (name, scope) collision.
func (r *ResourceRepo) Create(ctx context.Context, res *Resource) (int64, error) {
	query := `INSERT INTO mcp.resources (
		name, description, uri, annotations, category, owner, allowed_users,
		org_id, is_global, source_server_id, original_name, skill_ids, primary_skill_id,
		is_classified, is_active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		res.Name, res.Description, res.URI, marshalJSONB(res.Annotations), res.Category, res.Owner, emptyStrSlice(res.AllowedUsers),
		res.OrgID, res.IsGlobal, res.SourceServerID, res.OriginalName, emptyStrSlice(res.SkillIDs), res.PrimarySkillID,
		res.IsClassified, res.IsActive,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrNameConflict
		}
		return 0, fmt.Errorf("postgres: create resource: %w", err)
	}
	return id, nil
}

// GetByName fetches a resource by its namespaced name within a scope.
func (r *ResourceRepo) GetByName(ctx context.Context, name string, orgID *string) (*Resource, error) {
	var row pgx.Row
	if orgID == nil || *orgID == "" {
		row = r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM mcp.resources WHERE name=$1 AND is_global`, name)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM mcp.resources WHERE name=$1 AND org_id=$2 AND NOT is_global`, name, *orgID)
	}
	return scanResource(row)
}

// GetByURI fetches a resource by its URI within a scope, for resources/read.
func (r *ResourceRepo) GetByURI(ctx context.Context, uri string, orgID *string) (*Resource, error) {
	var row pgx.Row
	if orgID == nil || *orgID == "" {
		row = r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM mcp.resources WHERE uri=$1 AND is_global`, uri)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM mcp.resources WHERE uri=$1 AND (org_id=$2 OR is_global)`, uri, *orgID)
	}
	return scanResource(row)
}

// Upsert inserts a resource or updates the existing one by (name, scope).
func (r *ResourceRepo) Upsert(ctx context.Context, res *Resource) (int64, error) {
	existing, err := r.GetByName(ctx, res.Name, res.OrgID)
	if err != nil && err != ErrNotFound {
		return 0, err
	}
	if existing == nil {
		return r.Create(ctx, res)
	}
	_, err = r.pool.Exec(ctx, `UPDATE mcp.resources SET
		description=$2, uri=$3, annotations=$4, category=$5, owner=$6, allowed_users=$7,
		source_server_id=$8, original_name=$9, is_active=$10, updated_at=now()
	WHERE id=$1`,
		existing.ID, res.Description, res.URI, marshalJSONB(res.Annotations), res.Category, res.Owner, emptyStrSlice(res.AllowedUsers),
		res.SourceServerID, res.OriginalName, res.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: update resource: %w", err)
	}
	return existing.ID, nil
}

// List returns active resources visible to orgID, paginated.
func (r *ResourceRepo) List(ctx context.Context, orgID string, limit, offset int) ([]*Resource, error) {
	qb := &queryBuilder{}
	tenantFilter(qb, orgID)
	query := `SELECT ` + resourceColumns + ` FROM mcp.resources WHERE ` + qb.clauses[0] + ` AND is_active ORDER BY id ASC`
	query = qb.appendPagination(query, limit, offset)

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// SetInactive marks internal resources not seen in the latest sync as inactive.
func (r *ResourceRepo) SetInactive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE mcp.resources SET is_active=false, updated_at=now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: deactivate resources: %w", err)
	}
	return nil
}

// DeleteByServer atomically deletes all resources owned by sourceServerID,
// returning the count removed via a single delete-with-CTE.
func (r *ResourceRepo) DeleteByServer(ctx context.Context, sourceServerID string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.resources WHERE source_server_id=$1 RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete resources by server: %w", err)
	}
	return n, nil
}

// DeleteMissing atomically deletes resources owned by sourceServerID whose
// original_name is not in keep.
func (r *ResourceRepo) DeleteMissing(ctx context.Context, sourceServerID string, keep []string) (int64, error) {
	query := `WITH deleted AS (
		DELETE FROM mcp.resources WHERE source_server_id=$1 AND NOT (original_name = ANY($2)) RETURNING 1
	) SELECT COUNT(*) FROM deleted`
	var n int64
	if err := r.pool.QueryRow(ctx, query, sourceServerID, emptyStrSlice(keep)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: delete missing resources: %w", err)
	}
	return n, nil
}
