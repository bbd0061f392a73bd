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

package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"

	"github.com/altairalabs/mcpagg/internal/protocol"
)

func TestAcceptsSSE(t *testing.T) {
	assert.True(t, acceptsSSE("application/json, text/event-stream"))
	assert.False(t, acceptsSSE("application/json"))
	assert.False(t, acceptsSSE(""))
}

func TestHandleHealth_ReturnsCapabilities(t *testing.T) {
	s := New(Deps{Logger: logr.Discard()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestDispatch_PingReturnsPong(t *testing.T) {
	s := New(Deps{Logger: logr.Discard()})

	resp := s.dispatch(context.Background(), protocol.Request{JSONRPC: "2.0", ID: float64(1), Method: "ping"})

	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestDispatch_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := New(Deps{Logger: logr.Discard()})

	resp := s.dispatch(context.Background(), protocol.Request{JSONRPC: "2.0", ID: float64(1), Method: "bogus/method"})

	if assert.NotNil(t, resp.Error) {
		assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
	}
}

func TestWriteRPCResponse_SSEWrapsDataFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRPCResponse(rec, true, *protocol.NewResult(float64(1), map[string]any{"ok": true}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data: ")
}
