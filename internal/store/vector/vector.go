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

// Package vector maintains the four named vector collections (tools,
// prompts, resources, skills) that back the hierarchical search engine. It
// owns the deterministic point-id scheme, capacity enforcement, and the
// retry-with-backoff wrapper around the underlying vector store client.
package vector

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-logr/logr"
)

// Collection is one of the named point spaces in the vector store.
type Collection string

const (
	CollectionTools     Collection = "tools"
	CollectionPrompts   Collection = "prompts"
	CollectionResources Collection = "resources"
	CollectionSkills    Collection = "skills"
)

// offset and capacity per collection, per spec §3.8. Skills are keyed by a
// hash of the skill id rather than an offset scheme since they have no
// integer primary key.
const (
	toolsOffset     = 0
	promptsOffset   = 1_000_000
	resourcesOffset = 2_000_000
	collectionCap   = 1_000_000
)

// ErrOverflow is returned when a db_id would exceed its collection's capacity.
var ErrOverflow = errors.New("vector: point id exceeds collection capacity")

// PointID computes the deterministic point id for a relational primary key
// within a collection. Returns ErrOverflow when dbID >= capacity.
func PointID(c Collection, dbID int64) (int64, error) {
	offset, err := offsetFor(c)
	if err != nil {
		return 0, err
	}
	if dbID < 0 || dbID >= collectionCap {
		return 0, fmt.Errorf("%w: collection=%s db_id=%d capacity=%d", ErrOverflow, c, dbID, collectionCap)
	}
	return offset + dbID, nil
}

// SkillPointID hashes a skill id into the skills collection's point space.
// Skills have no numeric primary key, so FNV-1a keeps the mapping stable
// across processes without a sequence.
func SkillPointID(skillID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(skillID))
	// Mask off the sign bit: vector store point ids are non-negative.
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

func offsetFor(c Collection) (int64, error) {
	switch c {
	case CollectionTools:
		return toolsOffset, nil
	case CollectionPrompts:
		return promptsOffset, nil
	case CollectionResources:
		return resourcesOffset, nil
	default:
		return 0, fmt.Errorf("vector: unknown collection %q", c)
	}
}

// NearCapacity reports whether dbID has crossed warnPct of the collection's
// capacity, used to emit a WARN before the hard refusal at 100%.
func NearCapacity(dbID int64, warnPct float64) bool {
	return float64(dbID) >= float64(collectionCap)*warnPct
}

// Point is one vector with its payload, addressed by the deterministic id.
type Point struct {
	ID      int64
	Vector  []float32
	Payload map[string]any
}

// SearchHit is one scored match from Search.
type SearchHit struct {
	ID      int64
	Score   float32
	Payload map[string]any
}

// Filter narrows a search or delete to a payload subset: tenant scope, item
// type, and (for Stage 2 tool search) the matched skill ids.
type Filter struct {
	OrgID      string
	IsGlobal   *bool
	SkillIDs   []string
	ItemType   string
	ServerID   string
}

// Client is the narrow capability the aggregator needs from a vector store.
// HTTPClient implements it against a REST-style vector service; tests
// substitute a fake.
type Client interface {
	Upsert(ctx context.Context, collection Collection, points []Point) error
	Delete(ctx context.Context, collection Collection, ids []int64) error
	DeleteByFilter(ctx context.Context, collection Collection, filter Filter) (int64, error)
	Search(ctx context.Context, collection Collection, embedding []float32, filter Filter, limit int) ([]SearchHit, error)
}

// RetryConfig configures the exponential backoff wrapper around Client calls.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryConfig matches spec §4.6: 0.5s, 1.0s delays, 3 attempts total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: 500 * time.Millisecond}
}

// RetryingClient wraps a Client with exponential backoff on transient
// failures and WARN-at-90%/refuse-at-100% point-id enforcement.
type RetryingClient struct {
	inner   Client
	cfg     RetryConfig
	logger  logr.Logger
	warnPct float64
	onRetry func(collection Collection)
}

// NewRetryingClient wraps inner. onRetry, if non-nil, is invoked once per
// retried attempt (used to drive VectorWriteRetriesTotal).
func NewRetryingClient(inner Client, cfg RetryConfig, warnPct float64, logger logr.Logger, onRetry func(Collection)) *RetryingClient {
	return &RetryingClient{inner: inner, cfg: cfg, logger: logger, warnPct: warnPct, onRetry: onRetry}
}

// Upsert computes each point's id via PointID (raising ErrOverflow on a
// capacity breach, logging a WARN at the configured threshold) then retries
// the underlying write with exponential backoff.
func (c *RetryingClient) Upsert(ctx context.Context, collection Collection, dbIDs []int64, vectors [][]float32, payloads []map[string]any) error {
	if len(dbIDs) != len(vectors) || len(dbIDs) != len(payloads) {
		return fmt.Errorf("vector: mismatched upsert batch lengths")
	}

	points := make([]Point, len(dbIDs))
	for i, dbID := range dbIDs {
		id, err := PointID(collection, dbID)
		if err != nil {
			return err
		}
		if NearCapacity(dbID, c.warnPct) {
			c.logger.Info("vector collection approaching capacity", "collection", collection, "db_id", dbID, "capacity", collectionCap)
		}
		points[i] = Point{ID: id, Vector: vectors[i], Payload: payloads[i]}
	}

	return c.withRetry(ctx, collection, func() error {
		return c.inner.Upsert(ctx, collection, points)
	})
}

// Delete retries a point-id delete with exponential backoff.
func (c *RetryingClient) Delete(ctx context.Context, collection Collection, ids []int64) error {
	return c.withRetry(ctx, collection, func() error {
		return c.inner.Delete(ctx, collection, ids)
	})
}

// DeleteByFilter retries a payload-filtered delete (e.g. all points owned by
// a removed external server) with exponential backoff.
func (c *RetryingClient) DeleteByFilter(ctx context.Context, collection Collection, filter Filter) (int64, error) {
	var n int64
	err := c.withRetry(ctx, collection, func() error {
		var err error
		n, err = c.inner.DeleteByFilter(ctx, collection, filter)
		return err
	})
	return n, err
}

// Search retries a similarity search with exponential backoff.
func (c *RetryingClient) Search(ctx context.Context, collection Collection, embedding []float32, filter Filter, limit int) ([]SearchHit, error) {
	var hits []SearchHit
	err := c.withRetry(ctx, collection, func() error {
		var err error
		hits, err = c.inner.Search(ctx, collection, embedding, filter, limit)
		return err
	})
	return hits, err
}

func (c *RetryingClient) withRetry(ctx context.Context, collection Collection, op func() error) error {
	var lastErr error
	delay := c.cfg.BaseDelay
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrOverflow) {
			return lastErr
		}
		if attempt == c.cfg.Attempts {
			break
		}
		c.logger.Info("retrying vector store write", "collection", collection, "attempt", attempt, "error", lastErr.Error())
		if c.onRetry != nil {
			c.onRetry(collection)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("vector: exhausted %d attempts: %w", c.cfg.Attempts, lastErr)
}
