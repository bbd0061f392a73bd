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

// ServerRepo persists mcp.external_servers, the Server Registry's backing store.
type ServerRepo struct {
	pool *pgxpool.Pool
}

const serverColumns = `id, name, transport, command, args, env, url, headers, health_check_url,
	status, last_error, tool_count, org_id, is_global, registered_at, connected_at, last_health_check`

func scanServer(row pgx.Row) (*ExternalServer, error) {
	var s ExternalServer
	var command, url, healthCheckURL, lastError, orgID *string

	err := row.Scan(
		&s.ID, &s.Name, &s.Transport, &command, &s.Args, &s.Env, &url, &s.Headers, &healthCheckURL,
		&s.Status, &lastError, &s.ToolCount, &orgID, &s.IsGlobal, &s.RegisteredAt, &s.ConnectedAt, &s.LastHealthCheck,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan server: %w", err)
	}
	s.Command = stringOrEmpty(command)
	s.URL = stringOrEmpty(url)
	s.HealthCheckURL = stringOrEmpty(healthCheckURL)
	s.LastError = stringOrEmpty(lastError)
	s.OrgID = orgID
	if s.Args == nil {
		s.Args = []string{}
	}
	if s.Env == nil {
		s.Env = map[string]string{}
	}
	if s.Headers == nil {
		s.Headers = map[string]string{}
	}
	return &s, nil
}

// Register inserts a new external server record in REGISTERED status.
func (r *ServerRepo) Register(ctx context.Context, s *ExternalServer) (string, error) {
	query := `INSERT INTO mcp.external_servers (
		name, transport, command, args, env, url, headers, health_check_url,
		status, org_id, is_global
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'REGISTERED',$9,$10) RETURNING id`

	var id string
	err := r.pool.QueryRow(ctx, query,
		s.Name, s.Transport, nullString(s.Command), emptyStrSlice(s.Args), s.Env,
		nullString(s.URL), s.Headers, nullString(s.HealthCheckURL), s.OrgID, s.IsGlobal,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrNameConflict
		}
		return "", fmt.Errorf("postgres: register server: %w", err)
	}
	return id, nil
}

// GetByID fetches one external server.
func (r *ServerRepo) GetByID(ctx context.Context, id string) (*ExternalServer, error) {
	return scanServer(r.pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM mcp.external_servers WHERE id=$1`, id))
}

// List returns external servers visible to orgID.
func (r *ServerRepo) List(ctx context.Context, orgID string) ([]*ExternalServer, error) {
	qb := &queryBuilder{}
	tenantFilter(qb, orgID)
	query := `SELECT ` + serverColumns + ` FROM mcp.external_servers WHERE ` + qb.clauses[0] + ` ORDER BY registered_at ASC`

	rows, err := r.pool.Query(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list servers: %w", err)
	}
	defer rows.Close()

	var out []*ExternalServer
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetStatus transitions a server's status and records the last error, if any.
func (r *ServerRepo) SetStatus(ctx context.Context, id string, status ServerStatus, lastErr string) error {
	query := `UPDATE mcp.external_servers SET status=$2, last_error=$3,
		connected_at = CASE WHEN $2='CONNECTED' AND connected_at IS NULL THEN now() ELSE connected_at END
	WHERE id=$1`
	res, err := r.pool.Exec(ctx, query, id, status, nullString(lastErr))
	if err != nil {
		return fmt.Errorf("postgres: set server status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordHealthCheck stamps last_health_check at now().
func (r *ServerRepo) RecordHealthCheck(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE mcp.external_servers SET last_health_check=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: record health check: %w", err)
	}
	return nil
}

// SetToolCount refreshes the denormalized tool_count cache.
func (r *ServerRepo) SetToolCount(ctx context.Context, id string, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE mcp.external_servers SET tool_count=$2 WHERE id=$1`, id, count)
	if err != nil {
		return fmt.Errorf("postgres: set tool_count: %w", err)
	}
	return nil
}

// Delete hard-deletes the server record. Callers must first remove owned
// tools/prompts/resources and vector points (see internal/aggregator/server)
// — the FK is ON DELETE CASCADE only as a defense-in-depth backstop, the
// atomic delete-with-count on each catalog table is the path that reports
// an accurate removed-tool count to the caller.
func (r *ServerRepo) Delete(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM mcp.external_servers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete server: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
