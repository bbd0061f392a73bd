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

// Package health is the Health Monitor (spec §4.5.5): one loop per external
// server, pinging the live session or an HTTP health_check_url, tracking
// the 3-consecutive-failure/single-failure-with-healthy-prior thresholds,
// and persisting every status transition.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker/v2"

	"github.com/altairalabs/mcpagg/internal/aggregator/server"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// Pinger is the liveness probe a Session exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config bounds the monitor's timing.
type Config struct {
	Interval     time.Duration
	PingTimeout  time.Duration
	// SweepSchedule, if set, is a standard five-field cron expression
	// computing when the HIL-expiry sweep should next run alongside health
	// checks, e.g. "*/5 * * * *" (every five minutes).
	SweepSchedule string
}

// DefaultConfig matches spec §4.5.5 and §5's "health check: 5s" timeout.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, PingTimeout: 5 * time.Second}
}

// serverState tracks one server's consecutive-failure counters and circuit
// breaker, guarded by Monitor.mu.
type serverState struct {
	consecutiveFailures int
	breaker             *gobreaker.CircuitBreaker[struct{}]
}

// StatusObserver is notified of every persisted health transition, letting
// the protocol layer push status changes onto the aggregator websocket
// alongside the SSE progress stream.
type StatusObserver func(serverID string, status postgres.ServerStatus)

// Monitor runs one health-check loop per registered external server.
type Monitor struct {
	servers  *server.Registry
	repo     *postgres.ServerRepo
	cfg      Config
	client   *http.Client
	logger   logr.Logger
	observer StatusObserver

	mu     sync.Mutex
	states map[string]*serverState
}

// Observe registers the observer invoked on every persisted status
// transition. Only one observer is supported; callers that need fan-out
// should have it dispatch to multiple subscribers itself.
func (m *Monitor) Observe(obs StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = obs
}

// New builds a Monitor.
func New(servers *server.Registry, repo *postgres.ServerRepo, cfg Config, logger logr.Logger) (*Monitor, error) {
	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			return nil, fmt.Errorf("health: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	return &Monitor{
		servers: servers,
		repo:    repo,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.PingTimeout},
		logger:  logger.WithName("health"),
		states:  make(map[string]*serverState),
	}, nil
}

// Watch launches one monitoring loop for serverID and blocks until ctx is
// canceled. Callers start one goroutine per connected server.
func (m *Monitor) Watch(ctx context.Context, serverID string) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx, serverID)
		}
	}
}

func (m *Monitor) stateFor(serverID string) *serverState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[serverID]
	if !ok {
		st = &serverState{
			breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
				Name:    serverID,
				Timeout: m.cfg.Interval * 2,
			}),
		}
		m.states[serverID] = st
	}
	return st
}

func (m *Monitor) check(ctx context.Context, serverID string) {
	srv, err := m.repo.GetByID(ctx, serverID)
	if err != nil {
		m.logger.Error(err, "failed to load server for health check", "server_id", serverID)
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()

	st := m.stateFor(serverID)
	_, probeErr := st.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.probe(pingCtx, srv)
	})

	if recErr := m.repo.RecordHealthCheck(ctx, serverID); recErr != nil {
		m.logger.Error(recErr, "failed to record health check timestamp", "server_id", serverID)
	}

	// An open breaker short-circuits the usual 3-strike counter: it means
	// probes have already been failing fast enough to trip gobreaker, so the
	// server is forced to ERROR rather than waiting out the counter.
	var newStatus postgres.ServerStatus
	if errors.Is(probeErr, gobreaker.ErrOpenState) {
		st.consecutiveFailures = 3
		newStatus = postgres.ServerError
	} else {
		newStatus = nextStatus(srv.Status, probeErr == nil, &st.consecutiveFailures)
	}
	if newStatus == srv.Status {
		return
	}

	lastErr := ""
	if probeErr != nil {
		lastErr = probeErr.Error()
	}
	if err := m.repo.SetStatus(ctx, serverID, newStatus, lastErr); err != nil {
		m.logger.Error(err, "failed to persist health transition", "server_id", serverID, "status", newStatus)
		return
	}
	m.logger.Info("server health transitioned", "server_id", serverID, "from", srv.Status, "to", newStatus)

	m.mu.Lock()
	obs := m.observer
	m.mu.Unlock()
	if obs != nil {
		obs(serverID, newStatus)
	}
}

// SweepFunc is invoked on the configured cron schedule (cfg.SweepSchedule,
// independent of the health-check interval), typically to expire overdue
// HIL requests.
type SweepFunc func(ctx context.Context)

// RunSweeps starts a cron scheduler invoking fn on cfg.SweepSchedule and
// blocks until ctx is canceled. A Monitor with no SweepSchedule configured
// returns immediately; callers that want the sweep should run this in its
// own goroutine alongside the per-server Watch loops.
func (m *Monitor) RunSweeps(ctx context.Context, fn SweepFunc) {
	if m.cfg.SweepSchedule == "" {
		return
	}
	c := cron.New()
	if _, err := c.AddFunc(m.cfg.SweepSchedule, func() { fn(ctx) }); err != nil {
		m.logger.Error(err, "failed to schedule sweep, sweeps disabled", "schedule", m.cfg.SweepSchedule)
		return
	}
	c.Start()
	<-ctx.Done()
	c.Stop()
}

func (m *Monitor) probe(ctx context.Context, srv *postgres.ExternalServer) error {
	if srv.HealthCheckURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.HealthCheckURL, nil)
		if err != nil {
			return fmt.Errorf("health: build request: %w", err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("health: http check: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("health: http check returned status %d", resp.StatusCode)
		}
		return nil
	}

	sess, ok := m.servers.Session(srv.ID)
	if !ok {
		return fmt.Errorf("health: no live session for server %s", srv.Name)
	}
	pinger, ok := any(sess).(Pinger)
	if !ok {
		return fmt.Errorf("health: session does not support ping")
	}
	return pinger.Ping(ctx)
}

// nextStatus applies spec §4.5.5's threshold rules and mutates
// consecutiveFailures in place.
func nextStatus(current postgres.ServerStatus, success bool, consecutiveFailures *int) postgres.ServerStatus {
	if success {
		*consecutiveFailures = 0
		return postgres.ServerConnected
	}

	*consecutiveFailures++
	if *consecutiveFailures >= 3 {
		return postgres.ServerError
	}
	if current == postgres.ServerConnected {
		return postgres.ServerDegraded
	}
	return current
}
