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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HILRepo persists mcp.hil_requests, the human-in-the-loop state machine.
type HILRepo struct {
	pool *pgxpool.Pool
}

const hilColumns = `id, kind, user_id, tool_name, action, risk_level, fingerprint,
	options, payload, state, created_at, decided_at, expires_at`

func scanHIL(row pgx.Row) (*HILRequest, error) {
	var h HILRequest
	err := row.Scan(
		&h.ID, &h.Kind, &h.UserID, &h.ToolName, &h.Action, &h.RiskLevel, &h.Fingerprint,
		&h.Options, &h.Payload, &h.State, &h.CreatedAt, &h.DecidedAt, &h.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan hil request: %w", err)
	}
	h.Options = rawOrEmptyObject(h.Options)
	h.Payload = rawOrEmptyObject(h.Payload)
	return &h, nil
}

// Create persists a new HIL request in state pending.
func (r *HILRepo) Create(ctx context.Context, h *HILRequest) error {
	query := `INSERT INTO mcp.hil_requests (
		id, kind, user_id, tool_name, action, risk_level, fingerprint, options, payload, state, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',$10)`

	_, err := r.pool.Exec(ctx, query,
		h.ID, h.Kind, h.UserID, h.ToolName, h.Action, h.RiskLevel, h.Fingerprint,
		marshalJSONB(h.Options), marshalJSONB(h.Payload), h.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create hil request: %w", err)
	}
	return nil
}

// GetByID fetches one HIL request.
func (r *HILRepo) GetByID(ctx context.Context, id string) (*HILRequest, error) {
	return scanHIL(r.pool.QueryRow(ctx, `SELECT `+hilColumns+` FROM mcp.hil_requests WHERE id=$1`, id))
}

// PendingByFingerprint finds a still-pending, unexpired request with the
// identical (user, tool, arguments) fingerprint — the idempotence check
// the Request Router performs before creating a duplicate HIL request.
func (r *HILRepo) PendingByFingerprint(ctx context.Context, fingerprint string) (*HILRequest, error) {
	query := `SELECT ` + hilColumns + ` FROM mcp.hil_requests
		WHERE fingerprint=$1 AND state='pending' AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`
	h, err := scanHIL(r.pool.QueryRow(ctx, query, fingerprint))
	if err == ErrNotFound {
		return nil, nil
	}
	return h, err
}

// ApprovedByFingerprint finds a terminal-approved request with the identical
// fingerprint — the grant the Request Router consults on a retried call.
func (r *HILRepo) ApprovedByFingerprint(ctx context.Context, fingerprint string) (*HILRequest, error) {
	query := `SELECT ` + hilColumns + ` FROM mcp.hil_requests
		WHERE fingerprint=$1 AND state IN ('approved', 'submitted')
		ORDER BY decided_at DESC LIMIT 1`
	h, err := scanHIL(r.pool.QueryRow(ctx, query, fingerprint))
	if err == ErrNotFound {
		return nil, nil
	}
	return h, err
}

// Decide transitions a pending request to a terminal state. Terminal states
// are sticky: deciding an already-decided request is a no-op that returns
// ErrNotFound so callers can distinguish "already handled" from success.
func (r *HILRepo) Decide(ctx context.Context, id string, state HILState) error {
	query := `UPDATE mcp.hil_requests SET state=$2, decided_at=now() WHERE id=$1 AND state='pending'`
	res, err := r.pool.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("postgres: decide hil request: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOverdue transitions every pending request past its expires_at to
// expired, returning the count transitioned.
func (r *HILRepo) ExpireOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `WITH expired AS (
		UPDATE mcp.hil_requests SET state='expired', decided_at=$1
		WHERE state='pending' AND expires_at <= $1 RETURNING 1
	) SELECT COUNT(*) FROM expired`
	var n int64
	if err := r.pool.QueryRow(ctx, query, asOf).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: expire hil requests: %w", err)
	}
	return n, nil
}
