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

package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func TestPointID_OffsetsPerCollection(t *testing.T) {
	cases := []struct {
		collection Collection
		dbID       int64
		want       int64
	}{
		{CollectionTools, 0, 0},
		{CollectionTools, 42, 42},
		{CollectionPrompts, 0, 1_000_000},
		{CollectionPrompts, 7, 1_000_007},
		{CollectionResources, 0, 2_000_000},
		{CollectionResources, 999_999, 2_999_999},
	}
	for _, tc := range cases {
		got, err := PointID(tc.collection, tc.dbID)
		if err != nil {
			t.Fatalf("PointID(%s, %d) error: %v", tc.collection, tc.dbID, err)
		}
		if got != tc.want {
			t.Errorf("PointID(%s, %d) = %d, want %d", tc.collection, tc.dbID, got, tc.want)
		}
	}
}

func TestPointID_Overflow(t *testing.T) {
	_, err := PointID(CollectionTools, collectionCap)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow at capacity boundary, got %v", err)
	}

	_, err = PointID(CollectionTools, -1)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for negative db_id, got %v", err)
	}
}

func TestPointID_NoCollisionAcrossCollections(t *testing.T) {
	seen := map[int64]Collection{}
	collections := []Collection{CollectionTools, CollectionPrompts, CollectionResources}
	for _, c := range collections {
		for _, dbID := range []int64{0, 1, 500_000, collectionCap - 1} {
			id, err := PointID(c, dbID)
			if err != nil {
				t.Fatalf("PointID(%s, %d): %v", c, dbID, err)
			}
			if prior, ok := seen[id]; ok {
				t.Fatalf("point id %d collides between %s and %s", id, prior, c)
			}
			seen[id] = c
		}
	}
}

func TestPointID_UnknownCollection(t *testing.T) {
	_, err := PointID(CollectionSkills, 1)
	if err == nil {
		t.Fatal("expected error for a collection with no integer offset")
	}
}

func TestSkillPointID_Deterministic(t *testing.T) {
	a := SkillPointID("data-analysis")
	b := SkillPointID("data-analysis")
	if a != b {
		t.Errorf("SkillPointID is not deterministic: %d != %d", a, b)
	}
	if SkillPointID("data-analysis") == SkillPointID("file-management") {
		t.Errorf("distinct skill ids hashed to the same point id")
	}
	if a < 0 {
		t.Errorf("SkillPointID returned a negative id: %d", a)
	}
}

func TestNearCapacity(t *testing.T) {
	if NearCapacity(899_999, 0.9) {
		t.Error("899,999 should not yet be near capacity at 90%")
	}
	if !NearCapacity(900_000, 0.9) {
		t.Error("900,000 should be near capacity at 90%")
	}
}

// fakeClient is a minimal in-memory Client used to exercise RetryingClient
// without a live vector store.
type fakeClient struct {
	failures   int
	calls      int
	lastPoints []Point
}

func (f *fakeClient) Upsert(ctx context.Context, collection Collection, points []Point) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient upstream failure")
	}
	f.lastPoints = points
	return nil
}

func (f *fakeClient) Delete(ctx context.Context, collection Collection, ids []int64) error {
	return nil
}

func (f *fakeClient) DeleteByFilter(ctx context.Context, collection Collection, filter Filter) (int64, error) {
	return 0, nil
}

func (f *fakeClient) Search(ctx context.Context, collection Collection, embedding []float32, filter Filter, limit int) ([]SearchHit, error) {
	return nil, nil
}

func TestRetryingClient_SucceedsAfterTransientFailures(t *testing.T) {
	fc := &fakeClient{failures: 2}
	rc := NewRetryingClient(fc, RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, 0.9, logr.Discard(), nil)

	err := rc.Upsert(context.Background(), CollectionTools, []int64{1}, [][]float32{{0.1, 0.2}}, []map[string]any{{"name": "x"}})
	if err != nil {
		t.Fatalf("expected success within retry budget, got %v", err)
	}
	if fc.calls != 3 {
		t.Errorf("calls = %d, want 3", fc.calls)
	}
}

func TestRetryingClient_ExhaustsAttempts(t *testing.T) {
	fc := &fakeClient{failures: 10}
	var retries int
	rc := NewRetryingClient(fc, RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, 0.9, logr.Discard(), func(Collection) { retries++ })

	err := rc.Upsert(context.Background(), CollectionTools, []int64{1}, [][]float32{{0.1}}, []map[string]any{{}})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fc.calls != 3 {
		t.Errorf("calls = %d, want 3", fc.calls)
	}
	if retries != 2 {
		t.Errorf("onRetry invocations = %d, want 2", retries)
	}
}

func TestRetryingClient_OverflowNotRetried(t *testing.T) {
	fc := &fakeClient{}
	rc := NewRetryingClient(fc, RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, 0.9, logr.Discard(), nil)

	err := rc.Upsert(context.Background(), CollectionTools, []int64{collectionCap}, [][]float32{{0.1}}, []map[string]any{{}})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if fc.calls != 0 {
		t.Errorf("overflow should short-circuit before calling the inner client, calls = %d", fc.calls)
	}
}

func TestRetryingClient_MismatchedBatchLengths(t *testing.T) {
	fc := &fakeClient{}
	rc := NewRetryingClient(fc, DefaultRetryConfig(), 0.9, logr.Discard(), nil)

	err := rc.Upsert(context.Background(), CollectionTools, []int64{1, 2}, [][]float32{{0.1}}, []map[string]any{{}})
	if err == nil {
		t.Fatal("expected an error for mismatched batch lengths")
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", cfg.Attempts)
	}
	if cfg.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.BaseDelay)
	}
}
