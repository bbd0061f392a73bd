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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.HTTPAddr != ":8090" {
		t.Errorf("expected HTTPAddr ':8090', got %q", opts.HTTPAddr)
	}
	if opts.ConnectionTimeoutSeconds != 30 {
		t.Errorf("expected ConnectionTimeoutSeconds 30, got %d", opts.ConnectionTimeoutSeconds)
	}
	if opts.RequestTimeoutSeconds != 60 {
		t.Errorf("expected RequestTimeoutSeconds 60, got %d", opts.RequestTimeoutSeconds)
	}
	if opts.HealthFailureThreshold != 3 {
		t.Errorf("expected HealthFailureThreshold 3, got %d", opts.HealthFailureThreshold)
	}
	if opts.SkillThreshold != 0.40 {
		t.Errorf("expected SkillThreshold 0.40, got %v", opts.SkillThreshold)
	}
	if opts.EmbeddingDim != 1536 {
		t.Errorf("expected EmbeddingDim 1536, got %d", opts.EmbeddingDim)
	}
	if opts.HILExpirySeconds != 600 {
		t.Errorf("expected HILExpirySeconds 600, got %d", opts.HILExpirySeconds)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Options) {}, wantErr: false},
		{name: "empty http addr", mutate: func(o *Options) { o.HTTPAddr = "" }, wantErr: true},
		{name: "skill threshold out of range", mutate: func(o *Options) { o.SkillThreshold = 1.5 }, wantErr: true},
		{name: "tool score threshold negative", mutate: func(o *Options) { o.ToolScoreThreshold = -0.1 }, wantErr: true},
		{name: "overflow pct zero", mutate: func(o *Options) { o.VectorOverflowWarnPct = 0 }, wantErr: true},
		{
			name: "bad external server transport",
			mutate: func(o *Options) {
				o.ExternalServers = []ExternalServerConfig{{Name: "x", Transport: "carrier-pigeon"}}
			},
			wantErr: true,
		},
		{
			name: "valid external server transport",
			mutate: func(o *Options) {
				o.ExternalServers = []ExternalServerConfig{{Name: "demo", Transport: "sse", URL: "http://demo/sse"}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
http_addr: ":9999"
postgres_dsn: "postgres://x"
skill_threshold: 0.5
external_servers:
  - name: demo
    transport: sse
    url: http://demo/sse
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if opts.HTTPAddr != ":9999" {
		t.Errorf("expected HTTPAddr ':9999', got %q", opts.HTTPAddr)
	}
	if opts.SkillThreshold != 0.5 {
		t.Errorf("expected SkillThreshold 0.5, got %v", opts.SkillThreshold)
	}
	if len(opts.ExternalServers) != 1 || opts.ExternalServers[0].Name != "demo" {
		t.Fatalf("expected 1 external server 'demo', got %+v", opts.ExternalServers)
	}
	// Unset fields still carry their defaults.
	if opts.RequestTimeoutSeconds != 60 {
		t.Errorf("expected default RequestTimeoutSeconds 60, got %d", opts.RequestTimeoutSeconds)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MCPAGG_HTTP_ADDR", ":7000")
	t.Setenv("MCPAGG_SKILL_THRESHOLD", "0.75")
	t.Setenv("MCPAGG_HEALTH_FAILURE_THRESHOLD", "5")

	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if opts.HTTPAddr != ":7000" {
		t.Errorf("expected HTTPAddr ':7000', got %q", opts.HTTPAddr)
	}
	if opts.SkillThreshold != 0.75 {
		t.Errorf("expected SkillThreshold 0.75, got %v", opts.SkillThreshold)
	}
	if opts.HealthFailureThreshold != 5 {
		t.Errorf("expected HealthFailureThreshold 5, got %d", opts.HealthFailureThreshold)
	}
}

func TestLoad_EnvOverride_IgnoresMalformedNumeric(t *testing.T) {
	t.Setenv("MCPAGG_SKILL_THRESHOLD", "not-a-number")

	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if opts.SkillThreshold != 0.40 {
		t.Errorf("expected default SkillThreshold 0.40 to survive malformed override, got %v", opts.SkillThreshold)
	}
}

func TestDurationHelpers(t *testing.T) {
	opts := DefaultOptions()
	if opts.ConnectionTimeout().Seconds() != 30 {
		t.Errorf("expected 30s connection timeout, got %v", opts.ConnectionTimeout())
	}
	if opts.VectorRetryBaseDelay().Seconds() != 0.5 {
		t.Errorf("expected 0.5s retry base delay, got %v", opts.VectorRetryBaseDelay())
	}
	if opts.HILExpiry().Seconds() != 600 {
		t.Errorf("expected 600s HIL expiry, got %v", opts.HILExpiry())
	}
}
