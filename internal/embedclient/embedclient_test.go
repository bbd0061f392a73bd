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

package embedclient

import (
	"context"
	"testing"
)

func TestFake_Deterministic(t *testing.T) {
	f := NewFake(8)
	ctx := context.Background()

	a, err := f.Embed(ctx, "schedule a meeting")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := f.Embed(ctx, "schedule a meeting")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != 8 {
		t.Fatalf("len = %d, want 8", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestFake_DistinctTextDiffers(t *testing.T) {
	f := NewFake(16)
	ctx := context.Background()
	a, _ := f.Embed(ctx, "calendar events")
	b, _ := f.Embed(ctx, "file management")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct inputs hashed to an identical vector")
	}
}

func TestHTTPClient_Dimension(t *testing.T) {
	c := NewHTTPClient(1536, func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, 1536), nil
	})
	if c.Dimension() != 1536 {
		t.Errorf("Dimension() = %d, want 1536", c.Dimension())
	}
}
