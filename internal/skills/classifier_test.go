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

package skills

import (
	"testing"

	"github.com/altairalabs/mcpagg/internal/classifyclient"
)

func TestSelectAssignments_DropsBelowThreshold(t *testing.T) {
	cfg := DefaultClassifierConfig()
	raw := []classifyclient.Assignment{
		{SkillID: "calendar-events", Confidence: 0.8},
		{SkillID: "file-management", Confidence: 0.1},
	}
	valid := map[string]bool{"calendar-events": true, "file-management": true}

	assignments, primary := selectAssignments(1, raw, valid, cfg)
	if len(assignments) != 1 {
		t.Fatalf("len(assignments) = %d, want 1", len(assignments))
	}
	if assignments[0].SkillID != "calendar-events" {
		t.Errorf("assignment = %q, want calendar-events", assignments[0].SkillID)
	}
	if primary == nil || *primary != "calendar-events" {
		t.Errorf("primary = %v, want calendar-events", primary)
	}
}

func TestSelectAssignments_DropsOutOfScope(t *testing.T) {
	cfg := DefaultClassifierConfig()
	raw := []classifyclient.Assignment{
		{SkillID: "hallucinated-skill", Confidence: 0.9},
	}
	assignments, primary := selectAssignments(1, raw, map[string]bool{}, cfg)
	if len(assignments) != 0 {
		t.Errorf("expected out-of-scope assignment to be dropped, got %v", assignments)
	}
	if primary != nil {
		t.Errorf("expected no primary, got %v", *primary)
	}
}

func TestSelectAssignments_NoPrimaryBelowThreshold(t *testing.T) {
	cfg := DefaultClassifierConfig()
	raw := []classifyclient.Assignment{
		{SkillID: "calendar-events", Confidence: 0.45},
	}
	valid := map[string]bool{"calendar-events": true}
	assignments, primary := selectAssignments(1, raw, valid, cfg)
	if len(assignments) != 1 {
		t.Fatalf("len(assignments) = %d, want 1", len(assignments))
	}
	if primary != nil {
		t.Errorf("confidence 0.45 is below the 0.50 primary threshold, expected no primary, got %v", *primary)
	}
}

func TestSelectAssignments_CapsAtThree(t *testing.T) {
	cfg := DefaultClassifierConfig()
	raw := []classifyclient.Assignment{
		{SkillID: "a", Confidence: 0.9},
		{SkillID: "b", Confidence: 0.8},
		{SkillID: "c", Confidence: 0.7},
		{SkillID: "d", Confidence: 0.6},
	}
	valid := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	assignments, _ := selectAssignments(1, raw, valid, cfg)
	if len(assignments) != 3 {
		t.Fatalf("len(assignments) = %d, want 3", len(assignments))
	}
	if assignments[0].SkillID != "a" {
		t.Errorf("expected highest-confidence assignment first, got %q", assignments[0].SkillID)
	}
}

func TestSelectAssignments_EmptyInput(t *testing.T) {
	cfg := DefaultClassifierConfig()
	assignments, primary := selectAssignments(1, nil, map[string]bool{}, cfg)
	if assignments != nil || primary != nil {
		t.Errorf("expected nil/nil for empty input, got %v, %v", assignments, primary)
	}
}
