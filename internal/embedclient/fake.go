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

package embedclient

import (
	"context"
	"hash/fnv"
)

// Fake is a deterministic stand-in for Client used by tests. It hashes the
// input text into a reproducible pseudo-embedding rather than calling a
// model, so the same text always embeds to the same vector. Vectors carry no
// semantic similarity: texts that differ by one byte embed to unrelated
// vectors.
type Fake struct {
	dim int
}

// NewFake builds a Fake producing vectors of the given dimension.
func NewFake(dim int) *Fake {
	return &Fake{dim: dim}
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dim)
	h := fnv.New32a()
	for i := range vec {
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		sum := h.Sum32()
		vec[i] = float32(sum%2000)/1000 - 1 // spread across [-1, 1)
	}
	return vec, nil
}

func (f *Fake) Dimension() int {
	return f.dim
}

var _ Client = (*Fake)(nil)
