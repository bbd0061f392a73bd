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

package server

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/aggregator/session"
)

func newTestRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session.Session), logger: logr.Discard()}
}

func TestAttachDetach_SessionLookup(t *testing.T) {
	r := newTestRegistry()
	if _, ok := r.Session("srv-1"); ok {
		t.Fatal("expected no session before Attach")
	}

	s := session.New("srv-1", "demo", session.Transport{}, session.Config{RequestQueue: 1}, logr.Discard())
	r.Attach("srv-1", s)

	got, ok := r.Session("srv-1")
	if !ok || got != s {
		t.Fatalf("expected attached session to be returned, got %v, %v", got, ok)
	}

	r.Detach("srv-1")
	if _, ok := r.Session("srv-1"); ok {
		t.Fatal("expected session to be gone after Detach")
	}
}

func TestAttach_ReplacesExistingEntryAtomically(t *testing.T) {
	r := newTestRegistry()
	first := session.New("srv-1", "demo", session.Transport{}, session.Config{RequestQueue: 1}, logr.Discard())
	second := session.New("srv-1", "demo", session.Transport{}, session.Config{RequestQueue: 1}, logr.Discard())

	r.Attach("srv-1", first)
	r.Attach("srv-1", second)

	got, ok := r.Session("srv-1")
	if !ok || got != second {
		t.Fatalf("expected second session to replace first, got %v", got)
	}
}
