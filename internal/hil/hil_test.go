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

package hil

import (
	"testing"

	"github.com/go-logr/logr"
)

func TestFingerprint_DeterministicRegardlessOfArgOrder(t *testing.T) {
	a := map[string]any{"to": "a@example.com", "subject": "hi"}
	b := map[string]any{"subject": "hi", "to": "a@example.com"}

	fp1 := Fingerprint("user-1", "send_email", a)
	fp2 := Fingerprint("user-1", "send_email", b)
	if fp1 != fp2 {
		t.Errorf("fingerprints differ on arg order: %q vs %q", fp1, fp2)
	}
}

func TestFingerprint_DiffersOnUserToolOrArgs(t *testing.T) {
	base := Fingerprint("user-1", "send_email", map[string]any{"to": "a@example.com"})
	diffUser := Fingerprint("user-2", "send_email", map[string]any{"to": "a@example.com"})
	diffTool := Fingerprint("user-1", "delete_file", map[string]any{"to": "a@example.com"})
	diffArgs := Fingerprint("user-1", "send_email", map[string]any{"to": "b@example.com"})

	if base == diffUser || base == diffTool || base == diffArgs {
		t.Error("expected fingerprint to change with user, tool, or arguments")
	}
}

func TestNew_CompilesPolicyWithoutError(t *testing.T) {
	o, err := New(nil, 0, logr.Discard())
	if err != nil {
		t.Fatalf("unexpected error building orchestrator: %v", err)
	}
	if o.expiry != DefaultExpiry {
		t.Errorf("expiry = %v, want default %v", o.expiry, DefaultExpiry)
	}
}
