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

package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to an external vector store service over its REST API.
// The pack this module was grown from carries no vector-database SDK, so
// this speaks a small generic upsert/search/delete contract over HTTP
// instead of a vendor-specific wire format.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a Client against baseURL (e.g. "http://vector-store:6333").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type upsertRequest struct {
	Points []wirePoint `json:"points"`
}

type wirePoint struct {
	ID      int64          `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (c *HTTPClient) Upsert(ctx context.Context, collection Collection, points []Point) error {
	wire := make([]wirePoint, len(points))
	for i, p := range points {
		wire[i] = wirePoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return c.post(ctx, fmt.Sprintf("/collections/%s/points/upsert", collection), upsertRequest{Points: wire}, nil)
}

type deleteRequest struct {
	IDs    []int64 `json:"ids,omitempty"`
	Filter *wireFilter `json:"filter,omitempty"`
}

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

func (c *HTTPClient) Delete(ctx context.Context, collection Collection, ids []int64) error {
	return c.post(ctx, fmt.Sprintf("/collections/%s/points/delete", collection), deleteRequest{IDs: ids}, nil)
}

func (c *HTTPClient) DeleteByFilter(ctx context.Context, collection Collection, filter Filter) (int64, error) {
	var resp deleteResponse
	wf := toWireFilter(filter)
	err := c.post(ctx, fmt.Sprintf("/collections/%s/points/delete", collection), deleteRequest{Filter: &wf}, &resp)
	return resp.Deleted, err
}

type wireFilter struct {
	OrgID    string   `json:"org_id,omitempty"`
	IsGlobal *bool    `json:"is_global,omitempty"`
	SkillIDs []string `json:"skill_ids,omitempty"`
	ItemType string   `json:"item_type,omitempty"`
	ServerID string   `json:"server_id,omitempty"`
}

func toWireFilter(f Filter) wireFilter {
	return wireFilter{OrgID: f.OrgID, IsGlobal: f.IsGlobal, SkillIDs: f.SkillIDs, ItemType: f.ItemType, ServerID: f.ServerID}
}

type searchRequest struct {
	Vector []float32  `json:"vector"`
	Filter wireFilter `json:"filter,omitempty"`
	Limit  int        `json:"limit"`
}

type searchResponse struct {
	Hits []wireHit `json:"hits"`
}

type wireHit struct {
	ID      int64          `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (c *HTTPClient) Search(ctx context.Context, collection Collection, embedding []float32, filter Filter, limit int) ([]SearchHit, error) {
	var resp searchResponse
	req := searchRequest{Vector: embedding, Filter: toWireFilter(filter), Limit: limit}
	if err := c.post(ctx, fmt.Sprintf("/collections/%s/points/search", collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(resp.Hits))
	for i, h := range resp.Hits {
		hits[i] = SearchHit{ID: h.ID, Score: clampScore(h.Score), Payload: h.Payload}
	}
	return hits, nil
}

func clampScore(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vector: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("vector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vector: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vector: decode response from %s: %w", path, err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
