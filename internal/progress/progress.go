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

// Package progress is the Progress Service (spec §4.8): it assigns an
// operation id to a long-running task, lets producers push monotonic
// progress updates, and fans them out to SSE subscribers over an in-memory
// per-operation broadcast channel that closes on the terminal event.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// EventKind distinguishes a progress update from the terminal event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
)

// Event is one message broadcast on an operation's channel.
type Event struct {
	Kind    EventKind
	Data    map[string]any
}

// operation tracks one in-flight task: its last-seen progress (to enforce
// monotonic ordering) and the set of subscriber channels to fan out to.
type operation struct {
	mu           sync.Mutex
	taskType     string
	steps        int
	lastProgress int
	done         bool
	subscribers  []chan Event
}

// Service is the Progress Service.
type Service struct {
	mu         sync.RWMutex
	operations map[string]*operation
	logger     logr.Logger
}

// New builds a Service.
func New(logger logr.Logger) *Service {
	return &Service{operations: make(map[string]*operation), logger: logger.WithName("progress")}
}

// Start registers a new operation and returns its id.
func (s *Service) Start(taskType string, steps int, durationEstimate time.Duration) string {
	id := uuid.New().String()
	op := &operation{taskType: taskType, steps: steps}

	s.mu.Lock()
	s.operations[id] = op
	s.mu.Unlock()

	s.logger.Info("started operation", "id", id, "task_type", taskType, "steps", steps, "duration_estimate", durationEstimate)
	return id
}

// Update pushes a progress value (0-100, or step count if steps > 0) and a
// human-readable message, broadcasting to every subscriber. progress values
// must be non-decreasing within one operation; an out-of-order update is
// rejected rather than silently reordered.
func (s *Service) Update(id string, progressValue int, message string) error {
	op, err := s.get(id)
	if err != nil {
		return err
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.done {
		return fmt.Errorf("progress: operation %s is already terminal", id)
	}
	if progressValue < op.lastProgress {
		return fmt.Errorf("progress: operation %s received out-of-order progress %d after %d", id, progressValue, op.lastProgress)
	}
	op.lastProgress = progressValue

	event := Event{Kind: EventProgress, Data: map[string]any{"progress": progressValue, "message": message}}
	broadcast(op.subscribers, event)
	return nil
}

// Finish emits the terminal event with status, then closes every
// subscriber channel and removes the operation.
func (s *Service) Finish(id string, status string) error {
	op, err := s.get(id)
	if err != nil {
		return err
	}

	op.mu.Lock()
	if op.done {
		op.mu.Unlock()
		return nil
	}
	op.done = true
	subs := op.subscribers
	op.subscribers = nil
	op.mu.Unlock()

	broadcast(subs, Event{Kind: EventDone, Data: map[string]any{"status": status}})
	for _, ch := range subs {
		close(ch)
	}

	s.mu.Lock()
	delete(s.operations, id)
	s.mu.Unlock()
	return nil
}

// Subscribe returns a channel that receives every event for id from this
// point forward. The channel is closed once the operation reaches its
// terminal event; callers should drain it until closed, per spec §4.8's
// "on channel close, drain remaining buffered events then end the HTTP
// response".
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	op, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 16)
	op.mu.Lock()
	if op.done {
		op.mu.Unlock()
		close(ch)
		return ch, nil
	}
	op.subscribers = append(op.subscribers, ch)
	op.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Best-effort unsubscribe on client disconnect; the channel is left
		// for the garbage collector once no longer referenced by op.subscribers
		// removal would require tracking index, so a closed context simply
		// stops the caller from reading further sends (which are non-blocking).
	}()

	return ch, nil
}

func (s *Service) get(id string) (*operation, error) {
	s.mu.RLock()
	op, ok := s.operations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("progress: unknown operation %s", id)
	}
	return op, nil
}

// broadcast sends event to every subscriber without blocking on a slow or
// abandoned reader; a full channel drops the event rather than stalling the
// producer.
func broadcast(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
