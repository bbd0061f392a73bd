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

// Package classifyclient is the narrow capability boundary to the
// classification LLM: a tool descriptor in, ranked skill assignments out.
// The model itself is an external collaborator; this package only defines
// and fakes the contract the Classifier component (internal/skills) drives.
package classifyclient

import "context"

// Descriptor is what the classifier sees of a tool: enough to judge intent
// without shipping the full input schema.
type Descriptor struct {
	Name              string
	Description       string
	InputSchemaSummary string
}

// Assignment is one ranked skill candidate returned by the classifier.
type Assignment struct {
	SkillID    string
	Confidence float64
}

// Client classifies a tool descriptor against a candidate skill taxonomy.
type Client interface {
	// Classify returns up to three ranked (skill_id, confidence) assignments,
	// confidence descending. candidateSkillIDs scopes the model's choices to
	// skills that exist and are active in the tool's tenant scope.
	Classify(ctx context.Context, desc Descriptor, candidateSkillIDs []string) ([]Assignment, error)
}

// HTTPClient calls an external classification service; the transport is
// supplied by the caller since classifier backends vary (hosted LLM API,
// in-house microservice).
type HTTPClient struct {
	do func(ctx context.Context, desc Descriptor, candidateSkillIDs []string) ([]Assignment, error)
}

// NewHTTPClient builds a Client whose Classify calls do.
func NewHTTPClient(do func(ctx context.Context, desc Descriptor, candidateSkillIDs []string) ([]Assignment, error)) *HTTPClient {
	return &HTTPClient{do: do}
}

func (c *HTTPClient) Classify(ctx context.Context, desc Descriptor, candidateSkillIDs []string) ([]Assignment, error) {
	return c.do(ctx, desc, candidateSkillIDs)
}

var _ Client = (*HTTPClient)(nil)
