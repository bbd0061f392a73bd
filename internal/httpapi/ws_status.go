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
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// StatusHub fans out aggregator server status transitions to every
// connected websocket client at /ws/aggregator, companion to the SSE
// progress stream, mirroring the teacher's facade websocket-server pattern
// (connection set guarded by a mutex, best-effort write, drop on error).
type StatusHub struct {
	upgrader websocket.Upgrader
	logger   logr.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewStatusHub builds a StatusHub.
func NewStatusHub(logger logr.Logger) *StatusHub {
	return &StatusHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.WithName("ws-status"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection until it
// closes or errors; this hub only pushes, it never reads client frames
// beyond keeping the connection alive.
func (h *StatusHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(err, "websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes a server status transition to every connected client,
// dropping any connection that errors on write.
func (h *StatusHub) Broadcast(serverID, status string) {
	payload, _ := json.Marshal(map[string]any{"server_id": serverID, "status": status})

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
