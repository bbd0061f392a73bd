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

// Package config provides configuration management for the aggregator server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds all configuration for the aggregator process. It is loaded
// from a YAML file and then overridden field-by-field by MCPAGG_* environment
// variables.
type Options struct {
	// HTTPAddr is the address the MCP/REST HTTP server binds to.
	HTTPAddr string `yaml:"http_addr"`

	// PostgresDSN is the connection string for the relational store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr is the cache's Redis address (host:port).
	RedisAddr string `yaml:"redis_addr"`

	// VectorStoreURL is the base URL of the vector store service.
	VectorStoreURL string `yaml:"vector_store_url"`

	// ObjectStoreBucket is the S3 bucket used for classification artifacts.
	ObjectStoreBucket string `yaml:"object_store_bucket"`

	// AutoDiscoverPaths are directories scanned for internal registration modules.
	AutoDiscoverPaths []string `yaml:"auto_discover_paths"`

	// ExternalServers are the external MCP servers registered at startup.
	ExternalServers []ExternalServerConfig `yaml:"external_servers"`

	// Tunables, see spec §9.
	ConnectionTimeoutSeconds   int     `yaml:"connection_timeout_s"`
	RequestTimeoutSeconds      int     `yaml:"request_timeout_s"`
	HealthIntervalSeconds      int     `yaml:"health_interval_s"`
	HealthFailureThreshold     int     `yaml:"health_failure_threshold"`
	DrainTimeoutSeconds        int     `yaml:"drain_timeout_s"`
	SkillThreshold             float64 `yaml:"skill_threshold"`
	ToolScoreThreshold         float64 `yaml:"tool_score_threshold"`
	PrimaryConfidenceThreshold float64 `yaml:"primary_confidence_threshold"`
	VectorRetryAttempts        int     `yaml:"vector_retry_attempts"`
	VectorRetryBaseDelaySecs   float64 `yaml:"vector_retry_base_delay_s"`
	VectorOverflowWarnPct      float64 `yaml:"vector_overflow_warn_pct"`
	CacheVersion               int     `yaml:"cache_version"`
	EmbeddingDim               int     `yaml:"embedding_dim"`
	HILExpirySeconds           int     `yaml:"hil_expiry_s"`
}

// ExternalServerConfig describes one external MCP server to register at startup.
type ExternalServerConfig struct {
	Name           string            `yaml:"name"`
	Transport      string            `yaml:"transport"` // stdio|sse|http
	Command        string            `yaml:"command,omitempty"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	URL            string            `yaml:"url,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	HealthCheckURL string            `yaml:"health_check_url,omitempty"`
	OrgID          string            `yaml:"org_id,omitempty"`
	IsGlobal       bool              `yaml:"is_global,omitempty"`
}

// DefaultOptions returns Options populated with the documented defaults from
// spec §9.
func DefaultOptions() Options {
	return Options{
		HTTPAddr:                   ":8090",
		ConnectionTimeoutSeconds:   30,
		RequestTimeoutSeconds:      60,
		HealthIntervalSeconds:      30,
		HealthFailureThreshold:     3,
		DrainTimeoutSeconds:        30,
		SkillThreshold:             0.40,
		ToolScoreThreshold:         0.30,
		PrimaryConfidenceThreshold: 0.50,
		VectorRetryAttempts:        3,
		VectorRetryBaseDelaySecs:   0.5,
		VectorOverflowWarnPct:      0.90,
		CacheVersion:               1,
		EmbeddingDim:               1536,
		HILExpirySeconds:           600,
	}
}

// Load reads a YAML configuration file, applies it on top of DefaultOptions,
// then applies MCPAGG_* environment variable overrides.
func Load(path string) (Options, error) {
	opts := DefaultOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Options{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return Options{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(&opts)

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks that the loaded options are self-consistent.
func (o *Options) Validate() error {
	if o.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	if o.SkillThreshold < 0 || o.SkillThreshold > 1 {
		return fmt.Errorf("skill_threshold must be in [0,1], got %v", o.SkillThreshold)
	}
	if o.ToolScoreThreshold < 0 || o.ToolScoreThreshold > 1 {
		return fmt.Errorf("tool_score_threshold must be in [0,1], got %v", o.ToolScoreThreshold)
	}
	if o.PrimaryConfidenceThreshold < 0 || o.PrimaryConfidenceThreshold > 1 {
		return fmt.Errorf("primary_confidence_threshold must be in [0,1], got %v", o.PrimaryConfidenceThreshold)
	}
	if o.VectorOverflowWarnPct <= 0 || o.VectorOverflowWarnPct > 1 {
		return fmt.Errorf("vector_overflow_warn_pct must be in (0,1], got %v", o.VectorOverflowWarnPct)
	}
	for _, s := range o.ExternalServers {
		switch s.Transport {
		case "stdio", "sse", "http":
		default:
			return fmt.Errorf("external server %q: unsupported transport %q", s.Name, s.Transport)
		}
	}
	return nil
}

func (o *Options) ConnectionTimeout() time.Duration {
	return time.Duration(o.ConnectionTimeoutSeconds) * time.Second
}

func (o *Options) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

func (o *Options) HealthInterval() time.Duration {
	return time.Duration(o.HealthIntervalSeconds) * time.Second
}

func (o *Options) DrainTimeout() time.Duration {
	return time.Duration(o.DrainTimeoutSeconds) * time.Second
}

func (o *Options) VectorRetryBaseDelay() time.Duration {
	return time.Duration(o.VectorRetryBaseDelaySecs * float64(time.Second))
}

func (o *Options) HILExpiry() time.Duration {
	return time.Duration(o.HILExpirySeconds) * time.Second
}

// envOverride describes one MCPAGG_* environment variable and how to apply it.
type envOverride struct {
	key   string
	apply func(*Options, string) error
}

var envOverrides = []envOverride{
	{"MCPAGG_HTTP_ADDR", func(o *Options, v string) error { o.HTTPAddr = v; return nil }},
	{"MCPAGG_POSTGRES_DSN", func(o *Options, v string) error { o.PostgresDSN = v; return nil }},
	{"MCPAGG_REDIS_ADDR", func(o *Options, v string) error { o.RedisAddr = v; return nil }},
	{"MCPAGG_VECTOR_STORE_URL", func(o *Options, v string) error { o.VectorStoreURL = v; return nil }},
	{"MCPAGG_OBJECT_STORE_BUCKET", func(o *Options, v string) error { o.ObjectStoreBucket = v; return nil }},
	{"MCPAGG_CONNECTION_TIMEOUT_S", intOverride(func(o *Options) *int { return &o.ConnectionTimeoutSeconds })},
	{"MCPAGG_REQUEST_TIMEOUT_S", intOverride(func(o *Options) *int { return &o.RequestTimeoutSeconds })},
	{"MCPAGG_HEALTH_INTERVAL_S", intOverride(func(o *Options) *int { return &o.HealthIntervalSeconds })},
	{"MCPAGG_HEALTH_FAILURE_THRESHOLD", intOverride(func(o *Options) *int { return &o.HealthFailureThreshold })},
	{"MCPAGG_DRAIN_TIMEOUT_S", intOverride(func(o *Options) *int { return &o.DrainTimeoutSeconds })},
	{"MCPAGG_SKILL_THRESHOLD", floatOverride(func(o *Options) *float64 { return &o.SkillThreshold })},
	{"MCPAGG_TOOL_SCORE_THRESHOLD", floatOverride(func(o *Options) *float64 { return &o.ToolScoreThreshold })},
	{"MCPAGG_PRIMARY_CONFIDENCE_THRESHOLD", floatOverride(func(o *Options) *float64 { return &o.PrimaryConfidenceThreshold })},
	{"MCPAGG_VECTOR_RETRY_ATTEMPTS", intOverride(func(o *Options) *int { return &o.VectorRetryAttempts })},
	{"MCPAGG_VECTOR_RETRY_BASE_DELAY_S", floatOverride(func(o *Options) *float64 { return &o.VectorRetryBaseDelaySecs })},
	{"MCPAGG_VECTOR_OVERFLOW_WARN_PCT", floatOverride(func(o *Options) *float64 { return &o.VectorOverflowWarnPct })},
	{"MCPAGG_CACHE_VERSION", intOverride(func(o *Options) *int { return &o.CacheVersion })},
	{"MCPAGG_EMBEDDING_DIM", intOverride(func(o *Options) *int { return &o.EmbeddingDim })},
	{"MCPAGG_HIL_EXPIRY_S", intOverride(func(o *Options) *int { return &o.HILExpirySeconds })},
}

func intOverride(field func(*Options) *int) func(*Options, string) error {
	return func(o *Options, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing int: %w", err)
		}
		*field(o) = n
		return nil
	}
}

func floatOverride(field func(*Options) *float64) func(*Options, string) error {
	return func(o *Options, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing float: %w", err)
		}
		*field(o) = f
		return nil
	}
}

func applyEnvOverrides(o *Options) {
	for _, ov := range envOverrides {
		v, ok := os.LookupEnv(ov.key)
		if !ok || v == "" {
			continue
		}
		// Malformed numeric overrides are ignored rather than fatal: a typo'd
		// env var should not crash startup when the YAML file is already valid.
		_ = ov.apply(o, v)
	}
}
