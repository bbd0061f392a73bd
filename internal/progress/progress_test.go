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

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func TestStart_ReturnsDistinctIDs(t *testing.T) {
	svc := New(logr.Discard())
	id1 := svc.Start("sync_external", 3, 5*time.Second)
	id2 := svc.Start("sync_external", 3, 5*time.Second)
	if id1 == id2 {
		t.Error("expected distinct operation ids")
	}
}

func TestUpdate_UnknownOperationErrors(t *testing.T) {
	svc := New(logr.Discard())
	if err := svc.Update("bogus", 10, "x"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestUpdate_RejectsOutOfOrderProgress(t *testing.T) {
	svc := New(logr.Discard())
	id := svc.Start("sync_external", 3, time.Second)
	if err := svc.Update(id, 50, "halfway"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Update(id, 20, "backwards"); err == nil {
		t.Error("expected rejection of out-of-order progress")
	}
}

func TestSubscribe_ReceivesProgressThenDoneThenCloses(t *testing.T) {
	svc := New(logr.Discard())
	id := svc.Start("sync_external", 1, time.Second)

	ch, err := svc.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Update(id, 50, "working"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := <-ch
	if ev.Kind != EventProgress {
		t.Errorf("expected first event to be progress, got %v", ev.Kind)
	}

	if err := svc.Finish(id, "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev = <-ch
	if ev.Kind != EventDone {
		t.Errorf("expected terminal event to be done, got %v", ev.Kind)
	}

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after terminal event")
	}
}

func TestUpdate_AfterFinishIsRejected(t *testing.T) {
	svc := New(logr.Discard())
	id := svc.Start("sync_external", 1, time.Second)
	if err := svc.Finish(id, "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Update(id, 10, "too late"); err == nil {
		t.Error("expected update after finish to be rejected")
	}
}
