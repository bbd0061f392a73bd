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
	"sort"
	"strings"
)

// Fake is a keyword-overlap stand-in for Client used by tests: it scores
// each candidate skill by how many of its keywords appear in the tool's
// name/description, producing plausible confidences without calling a model.
type Fake struct {
	// Keywords maps skill id to its keyword set, mirroring skill_categories.keywords.
	Keywords map[string][]string
}

// NewFake builds a Fake scored from the given skill keyword sets.
func NewFake(keywords map[string][]string) *Fake {
	return &Fake{Keywords: keywords}
}

func (f *Fake) Classify(_ context.Context, desc Descriptor, candidateSkillIDs []string) ([]Assignment, error) {
	text := strings.ToLower(desc.Name + " " + desc.Description)
	candidates := make(map[string]bool, len(candidateSkillIDs))
	for _, id := range candidateSkillIDs {
		candidates[id] = true
	}

	var out []Assignment
	for skillID, kws := range f.Keywords {
		if !candidates[skillID] {
			continue
		}
		hits := 0
		for _, kw := range kws {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := float64(hits) / float64(len(kws))
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, Assignment{SkillID: skillID, Confidence: confidence})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].SkillID < out[j].SkillID
	})
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}

var _ Client = (*Fake)(nil)
