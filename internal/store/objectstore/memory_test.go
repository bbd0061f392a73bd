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

package objectstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "descriptors/srv/tool/x.json", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := s.Get(ctx, "descriptors/srv/tool/x.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %q", data)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.Delete(context.Background(), "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_ListPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, "classifications/1.json", []byte("{}"), "application/json")
	_ = s.Put(ctx, "classifications/2.json", []byte("{}"), "application/json")
	_ = s.Put(ctx, "descriptors/srv/tool/x.json", []byte("{}"), "application/json")

	keys, err := s.List(ctx, "classifications/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List returned %d keys, want 2", len(keys))
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists on missing key = (%v, %v), want (false, nil)", ok, err)
	}
	_ = s.Put(ctx, "k", []byte("v"), "text/plain")
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists on present key = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryStore_Ping(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
