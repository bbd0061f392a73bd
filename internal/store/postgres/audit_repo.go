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
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo persists mcp.audit_log, recording authz decisions and sensitive
// mutations for later review.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// Record inserts one audit entry.
func (r *AuditRepo) Record(ctx context.Context, e *AuditEntry) error {
	query := `INSERT INTO mcp.audit_log (user_id, org_id, action, resource, outcome, detail)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		nullString(e.UserID), e.OrgID, e.Action, e.Resource, e.Outcome, marshalJSONB(e.Detail),
	)
	if err != nil {
		return fmt.Errorf("postgres: record audit entry: %w", err)
	}
	return nil
}

// RecentByOrg returns the most recent audit entries for an org, newest first.
func (r *AuditRepo) RecentByOrg(ctx context.Context, orgID string, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, occurred_at, user_id, org_id, action, resource, outcome, detail
		FROM mcp.audit_log WHERE org_id=$1 ORDER BY occurred_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var userID *string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &userID, &e.OrgID, &e.Action, &e.Resource, &e.Outcome, &e.Detail); err != nil {
			return nil, err
		}
		e.UserID = stringOrEmpty(userID)
		e.Detail = rawOrEmptyObject(e.Detail)
		out = append(out, &e)
	}
	return out, rows.Err()
}
