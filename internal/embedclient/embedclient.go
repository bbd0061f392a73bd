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

// Package embedclient is the narrow capability boundary to the embedding
// model: text in, a fixed-dimension vector out. The model itself is an
// external collaborator; this package only defines and fakes the contract.
package embedclient

import "context"

// Client embeds text into a fixed-dimension vector.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HTTPClient calls an external embedding service over a small JSON contract,
// mirroring the narrow adapter style the rest of this repo uses for every
// external capability (vector store, classifier).
type HTTPClient struct {
	dim int
	do  func(ctx context.Context, text string) ([]float32, error)
}

// NewHTTPClient builds a Client whose Embed calls do. Kept generic over the
// transport (rather than hardcoding an HTTP POST path) since embedding
// providers vary widely in wire format; callers supply the transport.
func NewHTTPClient(dim int, do func(ctx context.Context, text string) ([]float32, error)) *HTTPClient {
	return &HTTPClient{dim: dim, do: do}
}

func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.do(ctx, text)
}

func (c *HTTPClient) Dimension() int {
	return c.dim
}

var _ Client = (*HTTPClient)(nil)
