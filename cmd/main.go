/*
Copyright 2025 Altaira Labs.

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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/altairalabs/mcpagg/internal/aggregator/health"
	"github.com/altairalabs/mcpagg/internal/aggregator/router"
	"github.com/altairalabs/mcpagg/internal/aggregator/server"
	"github.com/altairalabs/mcpagg/internal/aggregator/session"
	"github.com/altairalabs/mcpagg/internal/classifyclient"
	"github.com/altairalabs/mcpagg/internal/config"
	"github.com/altairalabs/mcpagg/internal/embedclient"
	"github.com/altairalabs/mcpagg/internal/hil"
	"github.com/altairalabs/mcpagg/internal/httpapi"
	"github.com/altairalabs/mcpagg/internal/internaltools"
	"github.com/altairalabs/mcpagg/internal/logging"
	"github.com/altairalabs/mcpagg/internal/metrics"
	"github.com/altairalabs/mcpagg/internal/progress"
	"github.com/altairalabs/mcpagg/internal/registry"
	"github.com/altairalabs/mcpagg/internal/search"
	"github.com/altairalabs/mcpagg/internal/skills"
	"github.com/altairalabs/mcpagg/internal/skillseed"
	"github.com/altairalabs/mcpagg/internal/store/cache"
	"github.com/altairalabs/mcpagg/internal/store/objectstore"
	"github.com/altairalabs/mcpagg/internal/store/postgres"
	"github.com/altairalabs/mcpagg/internal/store/vector"
	"github.com/altairalabs/mcpagg/internal/sync"
	"github.com/altairalabs/mcpagg/internal/tracing"
)

// serviceName labels every metric and trace this process emits.
const serviceName = "mcpagg"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("MCPAGG_CONFIG"), "Path to the YAML configuration file")
	flag.Parse()

	logger, syncLogs, err := logging.NewLogger()
	if err != nil {
		os.Exit(1)
	}
	defer syncLogs()
	setupLog := logger.WithName("setup")

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		setupLog.Error(err, "mcpagg exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Options, logger logr.Logger) error {
	setupLog := logger.WithName("setup")

	store, err := postgres.New(ctx, postgres.DefaultConfig(cfg.PostgresDSN))
	if err != nil {
		return err
	}
	defer store.Close()

	migrator, err := postgres.NewMigrator(cfg.PostgresDSN, logger)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		return err
	}
	defer migrator.Close()

	cacheClient, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, Version: cfg.CacheVersion})
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	objStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer objStore.Close()

	metricsReg := metrics.New(metrics.Config{ServiceName: serviceName})

	vectorBase := vector.NewHTTPClient(cfg.VectorStoreURL, cfg.RequestTimeout())
	vectorClient := vector.NewRetryingClient(
		vectorBase,
		vector.RetryConfig{Attempts: cfg.VectorRetryAttempts, BaseDelay: cfg.VectorRetryBaseDelay()},
		cfg.VectorOverflowWarnPct,
		logger,
		func(c vector.Collection) { metricsReg.VectorWriteRetriesTotal.WithLabelValues(string(c)).Inc() },
	)

	// The embedding and classification models are external collaborators
	// reached through a narrow interface (internal/embedclient,
	// internal/classifyclient); no model endpoint is configured here, so the
	// deterministic fakes stand in until a real provider is wired through
	// embedclient.NewHTTPClient / classifyclient.NewHTTPClient.
	embedder := embedclient.NewFake(cfg.EmbeddingDim)

	toolRepo := store.Tools()
	promptRepo := store.Prompts()
	resourceRepo := store.Resources()
	skillRepo := store.Skills()

	classifier := classifyclient.NewFake(nil)

	reg := registry.New(toolRepo, promptRepo, resourceRepo, logger)
	skillCat := skills.New(skillRepo, vectorClient, embedder, logger)
	skillClassifier := skills.NewClassifier(skillRepo, toolRepo, classifier, vectorClient, objStore, skills.ClassifierConfig{
		DropBelow:        0.30,
		PrimaryThreshold: cfg.PrimaryConfidenceThreshold,
	}, logger)

	seeder := skillseed.New(skillRepo, skillCat, logger)
	seeded, err := seeder.SeedIfEmpty(ctx)
	if err != nil {
		setupLog.Error(err, "failed to seed skill taxonomy")
	} else if seeded > 0 {
		setupLog.Info("seeded skill taxonomy", "count", seeded)
	}

	syncPipeline := sync.New(reg, skillCat, skillClassifier, toolRepo, promptRepo, resourceRepo, vectorClient, embedder, cacheClient, objStore, sync.DefaultConfig(), logger)
	syncPipeline.Start(ctx)

	internalModule := internaltools.Builtins()
	if _, err := syncPipeline.SyncInternal(ctx, internalModule, nil, true); err != nil {
		setupLog.Error(err, "failed initial internal sync")
	}

	serverRegistry := server.New(store.Servers(), reg, vectorClient, cacheClient, logger)

	healthMonitor, err := health.New(serverRegistry, store.Servers(), health.Config{
		Interval:      cfg.HealthInterval(),
		PingTimeout:   5 * time.Second,
		SweepSchedule: "*/5 * * * *",
	}, logger)
	if err != nil {
		return err
	}

	hilOrch, err := hil.New(store.HIL(), cfg.HILExpiry(), logger)
	if err != nil {
		return err
	}

	go healthMonitor.RunSweeps(ctx, func(sweepCtx context.Context) {
		if _, err := hilOrch.SweepExpired(sweepCtx); err != nil {
			logger.Error(err, "hil expiry sweep failed")
		}
	})

	connectConfiguredServers(ctx, cfg, serverRegistry, syncPipeline, healthMonitor, logger)

	routerR := router.New(serverRegistry, toolRepo, internalModule, hilOrch, cfg.RequestTimeout()/2, logger)
	searchEngine := search.New(vectorClient, embedder, toolRepo, logger)
	progressSvc := progress.New(logger)

	authenticator := httpapi.NewAuthenticator(jwtSecret(), apiKeys(), store.Audit(), logger)
	wsHub := httpapi.NewStatusHub(logger)
	healthMonitor.Observe(func(serverID string, status postgres.ServerStatus) {
		metricsReg.SessionsActive.WithLabelValues(string(status)).Inc()
		wsHub.Broadcast(serverID, string(status))
	})

	tracingProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: serviceName,
		Insecure:    true,
	})
	if err != nil {
		return err
	}
	defer tracingProvider.Shutdown(context.Background())

	apiServer := httpapi.New(httpapi.Deps{
		Registry: reg,
		Servers:  serverRegistry,
		Router:   routerR,
		Search:   searchEngine,
		Skills:   skillCat,
		HIL:      hilOrch,
		Progress: progressSvc,
		Sync:     syncPipeline,
		Auth:     authenticator,
		WSHub:    wsHub,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(apiServer.Handler(), serviceName))

	return serveHTTP(ctx, cfg.HTTPAddr, mux, logger)
}

// buildObjectStore prefers S3 when a bucket is configured, falling back to
// an in-memory store for local/dev runs with no bucket configured.
func buildObjectStore(ctx context.Context, cfg config.Options) (objectstore.Store, error) {
	if cfg.ObjectStoreBucket == "" {
		return objectstore.NewMemoryStore(), nil
	}
	return objectstore.NewS3Store(ctx, cfg.ObjectStoreBucket, objectstore.Config{
		Region: os.Getenv("AWS_REGION"),
	})
}

// connectConfiguredServers registers, connects, and starts health watching
// every external server named in cfg.ExternalServers, per spec §4.5.1/§4.5.2.
func connectConfiguredServers(ctx context.Context, cfg config.Options, servers *server.Registry, syncPipeline *sync.Pipeline, monitor *health.Monitor, logger logr.Logger) {
	sessCfg := session.Config{
		ConnectTimeout: cfg.ConnectionTimeout(),
		DrainTimeout:   cfg.DrainTimeout(),
		RequestQueue:   64,
	}

	for _, ext := range cfg.ExternalServers {
		var orgPtr *string
		if ext.OrgID != "" {
			orgPtr = &ext.OrgID
		}

		record := &postgres.ExternalServer{
			Name: ext.Name, Transport: postgres.ServerTransport(strings.ToUpper(ext.Transport)),
			Command: ext.Command, Args: ext.Args, Env: ext.Env, URL: ext.URL, Headers: ext.Headers,
			HealthCheckURL: ext.HealthCheckURL, Status: postgres.ServerRegistered,
			OrgID: orgPtr, IsGlobal: ext.IsGlobal,
		}
		id, err := servers.Register(ctx, record)
		if err != nil {
			logger.Error(err, "failed to register configured external server", "name", ext.Name)
			continue
		}

		transport := session.Transport{
			Type: record.Transport, Command: ext.Command, Args: ext.Args,
			Env: ext.Env, URL: ext.URL, Headers: ext.Headers,
		}
		sess := session.New(id, ext.Name, transport, sessCfg, logger)
		if err := sess.Connect(ctx); err != nil {
			logger.Error(err, "failed to connect configured external server", "name", ext.Name)
			continue
		}
		servers.Attach(id, sess)

		if _, err := syncPipeline.SyncExternal(ctx, id, ext.Name, orgPtr, ext.IsGlobal, sess); err != nil {
			logger.Error(err, "failed initial sync for external server", "name", ext.Name)
		}

		go monitor.Watch(ctx, id)
	}
}

// serveHTTP runs an http.Server on addr and blocks until ctx is canceled,
// then drains in-flight requests within a 30s grace period.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger logr.Logger) error {
	httpServer := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "error shutting down http server")
		}
	}()

	logger.Info("starting http server", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// jwtSecret reads the HMAC signing secret for bearer JWTs from the
// environment; an empty secret means every bearer token fails to validate,
// leaving X-API-Key as the only usable credential until configured.
func jwtSecret() []byte {
	return []byte(os.Getenv("MCPAGG_JWT_SECRET"))
}

// apiKeys parses MCPAGG_API_KEYS as a comma-separated list of
// "key=user_id" pairs.
func apiKeys() map[string]string {
	out := make(map[string]string)
	raw := os.Getenv("MCPAGG_API_KEYS")
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}
