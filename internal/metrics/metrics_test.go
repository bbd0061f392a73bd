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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RecordsToolCall(t *testing.T) {
	m := New(Config{ServiceName: "test-" + t.Name()})

	m.ToolCallsTotal.WithLabelValues("internal", StatusSuccess).Inc()
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("internal", StatusSuccess)); got != 1 {
		t.Errorf("expected counter 1, got %v", got)
	}
}

func TestNew_RecordsSearchFallback(t *testing.T) {
	m := New(Config{ServiceName: "test-" + t.Name()})

	m.SearchFallbackTotal.Inc()
	m.SearchFallbackTotal.Inc()
	if got := testutil.ToFloat64(m.SearchFallbackTotal); got != 2 {
		t.Errorf("expected counter 2, got %v", got)
	}
}

func TestNew_SessionsGaugeByState(t *testing.T) {
	m := New(Config{ServiceName: "test-" + t.Name()})

	m.SessionsActive.WithLabelValues("CONNECTED").Set(3)
	m.SessionsActive.WithLabelValues("ERROR").Set(1)

	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("CONNECTED")); got != 3 {
		t.Errorf("expected 3 connected sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("ERROR")); got != 1 {
		t.Errorf("expected 1 errored session, got %v", got)
	}
}
