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

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, version int) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client, "", version), mr
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t, 1)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	if err := c.Set(ctx, NamespaceTool, "42", payload{Name: "alpha"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if err := c.Get(ctx, NamespaceTool, "42", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("Name = %q, want alpha", got.Name)
	}
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t, 1)
	var dest map[string]string
	err := c.Get(context.Background(), NamespaceTool, "missing", &dest)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestCache_VersionBump_InvalidatesAllPriorReads(t *testing.T) {
	c, _ := newTestCache(t, 1)
	ctx := context.Background()

	if err := c.Set(ctx, NamespaceTool, "1", "v1-value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c.SetVersion(2)

	var dest string
	err := c.Get(ctx, NamespaceTool, "1", &dest)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected a version bump to hide the old key, got %v", err)
	}

	// New writes under the new version succeed independently of the old one.
	if err := c.Set(ctx, NamespaceTool, "1", "v2-value", time.Minute); err != nil {
		t.Fatalf("Set under new version failed: %v", err)
	}
	if err := c.Get(ctx, NamespaceTool, "1", &dest); err != nil {
		t.Fatalf("Get under new version failed: %v", err)
	}
	if dest != "v2-value" {
		t.Errorf("dest = %q, want v2-value", dest)
	}
}

func TestCache_InvalidateNamespace(t *testing.T) {
	c, _ := newTestCache(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.Set(ctx, NamespaceToolList, string(rune('a'+i)), i, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := c.Set(ctx, NamespaceTool, "keep", "still-here", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.InvalidateNamespace(ctx, NamespaceToolList); err != nil {
		t.Fatalf("InvalidateNamespace failed: %v", err)
	}

	var dest int
	if err := c.Get(ctx, NamespaceToolList, "a", &dest); !errors.Is(err, ErrMiss) {
		t.Errorf("expected invalidated namespace entry to miss, got %v", err)
	}

	var keep string
	if err := c.Get(ctx, NamespaceTool, "keep", &keep); err != nil {
		t.Errorf("unrelated namespace should be untouched: %v", err)
	}
}

func TestCache_InvalidateNamespace_LargeBatch(t *testing.T) {
	c, _ := newTestCache(t, 1)
	ctx := context.Background()

	// Exceed scanBatchSize so invalidation must page through more than one
	// SCAN cursor round.
	const n = scanBatchSize + 37
	for i := 0; i < n; i++ {
		id := string(rune('a')) + string(rune(i%26+'a')) + string(rune(i/26+'a'))
		if err := c.Set(ctx, NamespaceSearch, id, i, time.Minute); err != nil {
			t.Fatalf("Set %d failed: %v", i, err)
		}
	}

	if err := c.InvalidateNamespace(ctx, NamespaceSearch); err != nil {
		t.Fatalf("InvalidateNamespace failed: %v", err)
	}

	keys, err := c.client.Keys(ctx, c.pattern(NamespaceSearch)).Result()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected all %d keys invalidated, %d remain", n, len(keys))
	}
}
