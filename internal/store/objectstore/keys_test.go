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

import "testing"

func TestDescriptorKey(t *testing.T) {
	got := DescriptorKey("srv-1", "tool", "search_web")
	want := "descriptors/srv-1/tool/search_web.json"
	if got != want {
		t.Errorf("DescriptorKey = %q, want %q", got, want)
	}
}

func TestClassificationKey(t *testing.T) {
	got := ClassificationKey(42)
	want := "classifications/42.json"
	if got != want {
		t.Errorf("ClassificationKey = %q, want %q", got, want)
	}
}
