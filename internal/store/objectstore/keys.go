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

import "fmt"

// DescriptorKey addresses the raw tool/prompt/resource descriptor captured
// from an external server during a sync, kept for diffing and replay.
func DescriptorKey(serverID, kind, originalName string) string {
	return fmt.Sprintf("descriptors/%s/%s/%s.json", serverID, kind, originalName)
}

// ClassificationKey addresses the classifier's recorded input/output pair
// for one catalog item, kept for audit of why a skill was assigned.
func ClassificationKey(itemID int64) string {
	return fmt.Sprintf("classifications/%d.json", itemID)
}
