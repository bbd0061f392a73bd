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

// Package cache is the aggregator's best-effort read-through cache. Every
// key lives under a versioned prefix so bumping the version invalidates all
// prior reads in a single logical step without an expensive key sweep.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Namespace groups keys for pattern invalidation, mirroring spec §3.9.
type Namespace string

const (
	NamespaceTool       Namespace = "tool"
	NamespaceToolList   Namespace = "tool_list"
	NamespacePrompt     Namespace = "prompt"
	NamespaceResource   Namespace = "resource"
	NamespaceSearch     Namespace = "search"
	NamespaceSkill      Namespace = "skill"
)

// scanBatchSize bounds how many keys SCAN returns per round so invalidation
// of a large namespace never blocks Redis with a single huge command.
const scanBatchSize = 200

// Config configures the Redis-backed cache.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Version   int
}

// Cache wraps a Redis client with the versioned-prefix key scheme.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	version   int
}

// New creates a Cache, dialing Redis and verifying connectivity with a PING.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis: %w", err)
	}

	return &Cache{client: client, keyPrefix: cfg.KeyPrefix, version: cfg.Version}, nil
}

// NewFromClient wraps an existing Redis client, useful for tests against miniredis.
func NewFromClient(client *redis.Client, keyPrefix string, version int) *Cache {
	return &Cache{client: client, keyPrefix: keyPrefix, version: version}
}

// SetVersion bumps the cache version at runtime, e.g. after a schema change;
// every key under the old version becomes unreachable immediately.
func (c *Cache) SetVersion(v int) {
	c.version = v
}

func (c *Cache) key(ns Namespace, id string) string {
	return fmt.Sprintf("%smcp:cache:v%d:%s:%s", c.keyPrefix, c.version, ns, id)
}

func (c *Cache) pattern(ns Namespace) string {
	return fmt.Sprintf("%smcp:cache:v%d:%s:*", c.keyPrefix, c.version, ns)
}

// Get fetches and unmarshals a cached value. Returns ErrMiss on absence.
func (c *Cache) Get(ctx context.Context, ns Namespace, id string, dest any) error {
	data, err := c.client.Get(ctx, c.key(ns, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("cache: get %s/%s: %w", ns, id, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: unmarshal %s/%s: %w", ns, id, err)
	}
	return nil
}

// Set marshals and stores a value with a TTL. A zero TTL means no expiry,
// relying entirely on version bumps for eventual cleanup.
func (c *Cache) Set(ctx context.Context, ns Namespace, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s/%s: %w", ns, id, err)
	}
	if err := c.client.Set(ctx, c.key(ns, id), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s/%s: %w", ns, id, err)
	}
	return nil
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, ns Namespace, id string) error {
	if err := c.client.Del(ctx, c.key(ns, id)).Err(); err != nil {
		return fmt.Errorf("cache: delete %s/%s: %w", ns, id, err)
	}
	return nil
}

// InvalidateNamespace removes every key in a namespace under the current
// version using batched SCAN+DEL so a large namespace never issues one
// unbounded KEYS/DEL command against Redis.
func (c *Cache) InvalidateNamespace(ctx context.Context, ns Namespace) error {
	return c.invalidatePattern(ctx, c.pattern(ns))
}

func (c *Cache) invalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("cache: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: batch delete under %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
