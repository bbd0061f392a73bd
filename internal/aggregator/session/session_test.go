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

package session

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/mcpagg/internal/protocol"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

func testConfig() Config {
	return Config{ConnectTimeout: time.Second, DrainTimeout: time.Second, RequestQueue: 2}
}

func TestNew_StartsInitializing(t *testing.T) {
	s := New("srv-1", "demo", Transport{Type: postgres.TransportSSE, URL: "http://demo/sse"}, testConfig(), logr.Discard())
	if got := s.State(); got != StateInitializing {
		t.Fatalf("got state %q, want %q", got, StateInitializing)
	}
}

func TestCallTool_BeforeConnectReturnsServerUnavailable(t *testing.T) {
	s := New("srv-1", "demo", Transport{Type: postgres.TransportSSE, URL: "http://demo/sse"}, testConfig(), logr.Discard())

	_, err := s.CallTool(context.Background(), "alpha", nil)
	var rpcErr *protocol.Error
	if err == nil || !errorsAs(err, &rpcErr) {
		t.Fatalf("got %v, want a protocol.Error", err)
	}
	if rpcErr.Code != protocol.CodeServerUnavailable {
		t.Errorf("got code %d, want %d", rpcErr.Code, protocol.CodeServerUnavailable)
	}
}

func TestConnect_UnsupportedTransportFailsAndSetsFailed(t *testing.T) {
	s := New("srv-1", "demo", Transport{Type: "CARRIER_PIGEON"}, testConfig(), logr.Discard())

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("want error for unsupported transport")
	}
	if got := s.State(); got != StateFailed {
		t.Fatalf("got state %q, want %q", got, StateFailed)
	}
}

func TestPing_BeforeConnectReturnsServerUnavailable(t *testing.T) {
	s := New("srv-1", "demo", Transport{Type: postgres.TransportSSE, URL: "http://demo/sse"}, testConfig(), logr.Discard())

	err := s.Ping(context.Background())
	var rpcErr *protocol.Error
	if err == nil || !errorsAs(err, &rpcErr) {
		t.Fatalf("got %v, want a protocol.Error", err)
	}
	if rpcErr.Code != protocol.CodeServerUnavailable {
		t.Errorf("got code %d, want %d", rpcErr.Code, protocol.CodeServerUnavailable)
	}
}

func TestListTools_BeforeConnectReturnsServerUnavailable(t *testing.T) {
	s := New("srv-1", "demo", Transport{Type: postgres.TransportSSE, URL: "http://demo/sse"}, testConfig(), logr.Discard())

	_, err := s.ListTools(context.Background())
	var rpcErr *protocol.Error
	if err == nil || !errorsAs(err, &rpcErr) {
		t.Fatalf("got %v, want a protocol.Error", err)
	}
	if rpcErr.Code != protocol.CodeServerUnavailable {
		t.Errorf("got code %d, want %d", rpcErr.Code, protocol.CodeServerUnavailable)
	}
}

// errorsAs reports whether err is itself a *protocol.Error (a direct type
// assertion, not an errors.As chain walk) so call sites above read as plain
// assertions.
func errorsAs(err error, target **protocol.Error) bool {
	rpcErr, ok := err.(*protocol.Error)
	if !ok {
		return false
	}
	*target = rpcErr
	return true
}
