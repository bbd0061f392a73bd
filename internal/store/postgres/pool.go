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

// Package postgres is the relational system of record for the aggregator:
// tools, prompts, resources, skill categories, tool-skill assignments,
// external servers, HIL requests, and the audit log.
package postgres

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the connection pool backing the Store.
type Config struct {
	ConnString        string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	TLS               *tls.Config
}

// DefaultConfig returns sane pool sizing defaults.
func DefaultConfig(connString string) Config {
	return Config{
		ConnString:        connString,
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// Store wraps a pgx connection pool and is the entry point for all
// per-entity repositories.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// New creates a Store that owns the underlying connection pool. The pool is
// created from cfg and verified with a PING. Close shuts down the pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing connection string: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.TLS != nil {
		poolCfg.ConnConfig.TLSConfig = cfg.TLS
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	return &Store{pool: pool, ownsPool: true}, nil
}

// NewFromPool wraps an existing connection pool. Close is a no-op because the
// caller retains ownership of the pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: false}
}

// Pool exposes the underlying pgx pool for migration and health-check use.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool if this Store created it.
func (s *Store) Close() {
	if s.ownsPool {
		s.pool.Close()
	}
}

// Tools returns the tool repository.
func (s *Store) Tools() *ToolRepo { return &ToolRepo{pool: s.pool} }

// Prompts returns the prompt repository.
func (s *Store) Prompts() *PromptRepo { return &PromptRepo{pool: s.pool} }

// Resources returns the resource repository.
func (s *Store) Resources() *ResourceRepo { return &ResourceRepo{pool: s.pool} }

// Skills returns the skill category repository.
func (s *Store) Skills() *SkillRepo { return &SkillRepo{pool: s.pool} }

// Servers returns the external server repository.
func (s *Store) Servers() *ServerRepo { return &ServerRepo{pool: s.pool} }

// HIL returns the HIL request repository.
func (s *Store) HIL() *HILRepo { return &HILRepo{pool: s.pool} }

// Audit returns the audit log repository.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{pool: s.pool} }
