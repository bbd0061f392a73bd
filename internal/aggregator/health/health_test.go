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

package health

import (
	"testing"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

func TestNextStatus_SuccessResetsToConnected(t *testing.T) {
	failures := 2
	got := nextStatus(postgres.ServerDegraded, true, &failures)
	if got != postgres.ServerConnected || failures != 0 {
		t.Errorf("got (%v, %d), want (CONNECTED, 0)", got, failures)
	}
}

func TestNextStatus_SingleFailureFromConnectedGoesDegraded(t *testing.T) {
	failures := 0
	got := nextStatus(postgres.ServerConnected, false, &failures)
	if got != postgres.ServerDegraded || failures != 1 {
		t.Errorf("got (%v, %d), want (DEGRADED, 1)", got, failures)
	}
}

func TestNextStatus_ThreeConsecutiveFailuresGoesError(t *testing.T) {
	failures := 2
	got := nextStatus(postgres.ServerDegraded, false, &failures)
	if got != postgres.ServerError || failures != 3 {
		t.Errorf("got (%v, %d), want (ERROR, 3)", got, failures)
	}
}

func TestNextStatus_FailureFromNonConnectedStaysSame(t *testing.T) {
	failures := 1
	got := nextStatus(postgres.ServerError, false, &failures)
	if got != postgres.ServerError {
		t.Errorf("got %v, want ERROR to persist until a success resets it", got)
	}
}
