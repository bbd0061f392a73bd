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

package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestProvider creates a Provider backed by an in-memory span exporter so
// that tests can inspect the attributes that are actually recorded on spans.
func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(TracerName),
	}, exporter
}

func findAttr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, a := range span.Attributes {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider == nil {
		t.Fatal("expected non-nil provider")
	}
	if provider.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of disabled provider should be a no-op: %v", err)
	}
}

func TestStartRouteSpan_RecordsAttributes(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartRouteSpan(context.Background(), "demo.alpha")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "router.route" {
		t.Errorf("unexpected span name: %s", spans[0].Name)
	}
	val, ok := findAttr(spans[0], "mcpagg.tool_name")
	if !ok || val.AsString() != "demo.alpha" {
		t.Errorf("expected tool_name attribute demo.alpha, got %v (ok=%v)", val, ok)
	}
	kind, ok := findAttr(spans[0], attrSpanKind)
	if !ok || kind.AsString() != SpanKindRoute {
		t.Errorf("expected span kind %q, got %v", SpanKindRoute, kind)
	}
}

func TestStartSessionSpan_RecordsServerName(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartSessionSpan(context.Background(), "demo", "tools/call")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "session.tools/call" {
		t.Errorf("unexpected span name: %s", spans[0].Name)
	}
	val, ok := findAttr(spans[0], "mcpagg.server_name")
	if !ok || val.AsString() != "demo" {
		t.Errorf("expected server_name attribute demo, got %v (ok=%v)", val, ok)
	}
}

func TestStartSearchSpan_RecordsQuery(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartSearchSpan(context.Background(), "schedule a meeting")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	val, ok := findAttr(spans[0], "mcpagg.query")
	if !ok || val.AsString() != "schedule a meeting" {
		t.Errorf("expected query attribute, got %v (ok=%v)", val, ok)
	}
}

func TestRecordError_SetsErrorStatus(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartRouteSpan(context.Background(), "x")
	RecordError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestSetSuccess_SetsOkStatus(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartRouteSpan(context.Background(), "x")
	SetSuccess(span)
	span.End()

	spans := exporter.GetSpans()
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status.Code)
	}
}

func TestRecordError_NilErrorIsNoop(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.StartRouteSpan(context.Background(), "x")
	RecordError(span, nil)
	span.End()

	spans := exporter.GetSpans()
	if spans[0].Status.Code == codes.Error {
		t.Error("expected no error status for nil error")
	}
}
