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

package classifyclient

import (
	"context"
	"testing"
)

func TestFake_RanksByKeywordOverlap(t *testing.T) {
	f := NewFake(map[string][]string{
		"calendar-events": {"calendar", "meeting", "schedule"},
		"file-management": {"file", "directory", "upload"},
	})

	got, err := f.Classify(context.Background(), Descriptor{
		Name:        "send_meeting_invite",
		Description: "schedule a meeting and notify attendees",
	}, []string{"calendar-events", "file-management"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one assignment")
	}
	if got[0].SkillID != "calendar-events" {
		t.Errorf("top assignment = %q, want calendar-events", got[0].SkillID)
	}
}

func TestFake_RespectsCandidateScope(t *testing.T) {
	f := NewFake(map[string][]string{
		"calendar-events": {"calendar", "meeting"},
	})
	got, err := f.Classify(context.Background(), Descriptor{
		Name: "schedule_meeting",
	}, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no assignments when candidate list excludes all skills, got %v", got)
	}
}

func TestFake_CapsAtThreeAssignments(t *testing.T) {
	f := NewFake(map[string][]string{
		"a": {"x"}, "b": {"x"}, "c": {"x"}, "d": {"x"},
	})
	got, err := f.Classify(context.Background(), Descriptor{Name: "x x x x"}, []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) > 3 {
		t.Errorf("len = %d, want <= 3", len(got))
	}
}
