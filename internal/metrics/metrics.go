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

// Package metrics provides Prometheus metrics for the aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label constants shared across metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultDurationBuckets are the default histogram buckets for request/search
// latencies, in seconds.
var DefaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds all Prometheus metrics for the aggregator.
type Metrics struct {
	// ToolCallsTotal counts routed tools/call invocations.
	ToolCallsTotal *prometheus.CounterVec
	// ToolCallDuration is the histogram of routed tool call durations.
	ToolCallDuration *prometheus.HistogramVec

	// SearchRequestsTotal counts hierarchical search requests.
	SearchRequestsTotal *prometheus.CounterVec
	// SearchDuration is the histogram of search stage durations.
	SearchDuration *prometheus.HistogramVec
	// SearchFallbackTotal counts searches that fell back to direct tool search.
	SearchFallbackTotal prometheus.Counter

	// SessionsActive is the gauge of external server sessions, labelled by state.
	SessionsActive *prometheus.GaugeVec
	// HealthCheckFailuresTotal counts health-check failures per server.
	HealthCheckFailuresTotal *prometheus.CounterVec

	// CacheHitsTotal / CacheMissesTotal count cache lookups by namespace.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// VectorOverflowWarningsTotal counts point-id capacity warnings.
	VectorOverflowWarningsTotal *prometheus.CounterVec
	// VectorWriteRetriesTotal counts retried vector store writes.
	VectorWriteRetriesTotal *prometheus.CounterVec

	// HILRequestsTotal counts HIL requests created, by kind.
	HILRequestsTotal *prometheus.CounterVec
}

// Config configures constant labels applied to every metric.
type Config struct {
	ServiceName string
}

// New creates and registers all Prometheus metrics for the aggregator.
func New(cfg Config) *Metrics {
	labels := prometheus.Labels{"service": cfg.ServiceName}

	return &Metrics{
		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_tool_calls_total",
			Help:        "Total number of routed tools/call invocations",
			ConstLabels: labels,
		}, []string{"routed_to", "status"}),

		ToolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mcpagg_tool_call_duration_seconds",
			Help:        "Routed tool call duration in seconds",
			ConstLabels: labels,
			Buckets:     DefaultDurationBuckets,
		}, []string{"routed_to"}),

		SearchRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_search_requests_total",
			Help:        "Total number of hierarchical search requests",
			ConstLabels: labels,
		}, []string{"strategy"}),

		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mcpagg_search_duration_seconds",
			Help:        "Search stage duration in seconds",
			ConstLabels: labels,
			Buckets:     DefaultDurationBuckets,
		}, []string{"stage"}),

		SearchFallbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "mcpagg_search_fallback_total",
			Help:        "Total number of searches that fell back to direct tool search",
			ConstLabels: labels,
		}),

		SessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mcpagg_sessions_active",
			Help:        "Number of external server sessions by state",
			ConstLabels: labels,
		}, []string{"state"}),

		HealthCheckFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_health_check_failures_total",
			Help:        "Total number of health check failures by server",
			ConstLabels: labels,
		}, []string{"server"}),

		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_cache_hits_total",
			Help:        "Total number of cache hits by namespace",
			ConstLabels: labels,
		}, []string{"namespace"}),

		CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_cache_misses_total",
			Help:        "Total number of cache misses by namespace",
			ConstLabels: labels,
		}, []string{"namespace"}),

		VectorOverflowWarningsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_vector_overflow_warnings_total",
			Help:        "Total number of point-id capacity warnings by collection",
			ConstLabels: labels,
		}, []string{"collection"}),

		VectorWriteRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_vector_write_retries_total",
			Help:        "Total number of retried vector store writes by collection",
			ConstLabels: labels,
		}, []string{"collection"}),

		HILRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcpagg_hil_requests_total",
			Help:        "Total number of HIL requests created by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
	}
}
