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

package sync

import (
	"testing"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

func TestToolEmbedText_CombinesNameAndDescription(t *testing.T) {
	got := toolEmbedText("acme.send_email", "sends an email via the acme provider")
	want := "acme.send_email sends an email via the acme provider"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCollectionFor(t *testing.T) {
	cases := []struct {
		kind    postgres.ItemKind
		wantErr bool
	}{
		{postgres.ItemTool, false},
		{postgres.ItemPrompt, false},
		{postgres.ItemResource, false},
		{postgres.ItemKind("bogus"), true},
	}
	for _, tc := range cases {
		_, err := collectionFor(tc.kind)
		if (err != nil) != tc.wantErr {
			t.Errorf("collectionFor(%q) error = %v, wantErr %v", tc.kind, err, tc.wantErr)
		}
	}
}

// diffKeep mirrors the keep-set logic SyncExternal builds before calling
// DeleteMissing: anything in current not present in keep is pruned.
func diffKeep(current, keep []string) []string {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var missing []string
	for _, c := range current {
		if !keepSet[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func TestDiffKeep_IdentifiesRemovedNames(t *testing.T) {
	current := []string{"alpha", "beta", "gamma"}
	keep := []string{"alpha", "gamma"}
	missing := diffKeep(current, keep)
	if len(missing) != 1 || missing[0] != "beta" {
		t.Errorf("missing = %v, want [beta]", missing)
	}
}

func TestDiffKeep_EmptyKeepRemovesAll(t *testing.T) {
	current := []string{"alpha", "beta"}
	missing := diffKeep(current, nil)
	if len(missing) != 2 {
		t.Errorf("missing = %v, want all of current", missing)
	}
}

func TestDiffKeep_NothingMissingWhenAllKept(t *testing.T) {
	current := []string{"alpha", "beta"}
	missing := diffKeep(current, []string{"alpha", "beta"})
	if len(missing) != 0 {
		t.Errorf("missing = %v, want none", missing)
	}
}
