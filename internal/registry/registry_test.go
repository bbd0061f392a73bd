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

package registry

import (
	"testing"
)

func TestNamespacedName(t *testing.T) {
	got := NamespacedName("demo", "alpha")
	if got != "demo.alpha" {
		t.Errorf("got %q, want demo.alpha", got)
	}
}

func TestValidateInputSchema_EmptyIsValid(t *testing.T) {
	cases := [][]byte{nil, []byte(""), []byte("{}"), []byte("null")}
	for _, c := range cases {
		if err := validateInputSchema(c); err != nil {
			t.Errorf("expected empty schema %q to be valid, got %v", c, err)
		}
	}
}

func TestValidateInputSchema_ValidSchema(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`)
	if err := validateInputSchema(schema); err != nil {
		t.Errorf("expected valid schema to pass, got %v", err)
	}
}

func TestValidateInputSchema_RejectsMalformed(t *testing.T) {
	schema := []byte(`{"type":"object","properties": "not-an-object"}`)
	if err := validateInputSchema(schema); err == nil {
		t.Error("expected malformed schema to be rejected")
	}
}
