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
)

func TestNormalizeKeywords_DedupAndLowercase(t *testing.T) {
	got := normalizeKeywords([]string{"Calendar", "meeting", "CALENDAR", " schedule ", ""})
	want := []string{"calendar", "meeting", "schedule"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidate_RejectsBadID(t *testing.T) {
	cases := []string{"Calendar", "1calendar", "calendar events", "-calendar", ""}
	for _, id := range cases {
		err := validate(Input{ID: id, Description: "a long enough description"})
		if err == nil {
			t.Errorf("expected validate to reject id %q", id)
		}
	}
}

func TestValidate_AcceptsGoodID(t *testing.T) {
	err := validate(Input{ID: "calendar-events_v2", Description: "a long enough description"})
	if err != nil {
		t.Errorf("expected valid id to pass, got %v", err)
	}
}

func TestValidate_RejectsShortDescription(t *testing.T) {
	err := validate(Input{ID: "calendar", Description: "short"})
	if err != ErrDescriptionTooShort {
		t.Errorf("expected ErrDescriptionTooShort, got %v", err)
	}
}

func TestEmbeddingText_IncludesAllFields(t *testing.T) {
	got := embeddingText("Calendar", "manages events", []string{"calendar", "meeting"})
	want := "Calendar manages events calendar meeting"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
