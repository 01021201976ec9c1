// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend assembles the StratForge strategy backend service.
//
// This package contains the main Service type that coordinates all
// components: the durable KV store, the generation job orchestrator, the
// billing ledger processor, the coin guard, HTTP routing, and
// observability infrastructure.
//
// # Usage
//
//	cfg := backend.Config{Port: 12400, LLMBackend: "openai"}
//	svc, err := backend.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	log.Fatal(svc.Run())
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stratforge-ai/stratforge/services/backend/auth"
	"github.com/stratforge-ai/stratforge/services/backend/jobs"
	"github.com/stratforge-ai/stratforge/services/backend/ledger"
	"github.com/stratforge-ai/stratforge/services/backend/observability"
	"github.com/stratforge-ai/stratforge/services/backend/routes"
	storage "github.com/stratforge-ai/stratforge/services/backend/storage/badger"
	"github.com/stratforge-ai/stratforge/services/backend/store"
	"github.com/stratforge-ai/stratforge/services/llm"
)

// Service is the backend lifecycle contract.
//
// Run blocks until the server stops. Router exposes the Gin engine for
// integration tests. Close stops background work and releases the store;
// it is safe to call after Run returns.
type Service interface {
	Run() error
	Router() *gin.Engine
	Close() error
}

// Config holds backend configuration. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12400.
	Port int

	// DBPath is the Badger data directory. Default: "./data/stratforge".
	// Ignored when InMemoryDB is set.
	DBPath string

	// InMemoryDB runs the store without disk persistence. For tests and
	// ephemeral dev environments.
	InMemoryDB bool

	// WebhookSecret is the shared HMAC secret for billing webhooks.
	// Webhooks are rejected when empty.
	WebhookSecret string

	// LLMBackend selects the generator: "openai" or "static".
	// Default: "openai".
	LLMBackend string

	// OTelEndpoint is the OpenTelemetry collector endpoint. Tracing is
	// disabled when empty.
	OTelEndpoint string

	// DisableMetrics turns off the Prometheus registry and the /metrics
	// endpoint. Metrics are on by default.
	DisableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// AttemptTimeout bounds one generator invocation. Default 90s.
	AttemptTimeout time.Duration

	// RetryBaseDelay is the initial retry backoff. Default 2s.
	RetryBaseDelay time.Duration

	// ReanalyzeCost is the coin price of one re-analysis. Default 2.
	ReanalyzeCost int64

	// VersionRetention caps retained code versions per strategy lineage.
	// Default 10.
	VersionRetention int

	// AuthTokens is a "token:account,token:account" table. When empty the
	// permissive development provider is used.
	AuthTokens string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12400
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/stratforge"
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.ReanalyzeCost == 0 {
		cfg.ReanalyzeCost = 2
	}
	if cfg.VersionRetention == 0 {
		cfg.VersionRetention = store.DefaultVersionRetention
	}
	return cfg
}

type service struct {
	config        Config
	router        *gin.Engine
	db            *storage.DB
	orchestrator  *jobs.Orchestrator
	tracerCleanup func(context.Context)
}

// New creates a backend Service with the given configuration.
//
// Initialization order matters: the store opens first (fatal on failure),
// then the domain components, then routing. Tracing is optional and only
// initialized when an OTel endpoint is configured.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	storeCfg := storage.DefaultConfig(s.config.DBPath)
	if s.config.InMemoryDB {
		storeCfg = storage.InMemoryConfig()
	}
	db, err := storage.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.db = db

	kv := store.NewKV(db)
	jobStore := store.NewJobStore(kv, nil)
	ledgerStore := store.NewLedgerStore(kv, nil)
	versionStore := store.NewVersionStore(kv, s.config.VersionRetention, nil)

	client, err := s.initLLMClient()
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if !s.config.DisableMetrics {
		registry = prometheus.NewRegistry()
		metrics = observability.New(registry)
	}

	s.orchestrator = jobs.New(jobStore, versionStore, client, jobs.Config{
		AttemptTimeout: s.config.AttemptTimeout,
		RetryBaseDelay: s.config.RetryBaseDelay,
	}, metrics, slog.Default())

	// Jobs a previous process left mid-generation have no running task;
	// fail them into a retryable state before serving requests.
	if err := s.orchestrator.Recover(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	processor := ledger.NewProcessor(ledgerStore, ledger.DefaultCatalog(), ledger.ProcessorConfig{}, slog.Default())
	guard := ledger.NewGuard(ledgerStore, slog.Default())

	provider, err := s.initAuthProvider()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize auth provider: %w", err)
	}

	s.router = gin.New()
	s.router.Use(gin.Logger(), gin.Recovery())
	if s.config.OTelEndpoint != "" {
		s.router.Use(otelgin.Middleware("backend-service"))
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Orchestrator:  s.orchestrator,
		Guard:         guard,
		Processor:     processor,
		Ledger:        ledgerStore,
		Versions:      versionStore,
		Auth:          provider,
		Metrics:       metrics,
		WebhookSecret: []byte(s.config.WebhookSecret),
		ReanalyzeCost: s.config.ReanalyzeCost,
		Registry:      registry,
	})

	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting backend server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the configured Gin engine for integration testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close stops background generation tasks, flushes the tracer, and closes
// the store. Idempotent.
func (s *service) Close() error {
	if s.orchestrator != nil {
		s.orchestrator.Close()
		s.orchestrator = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// initTracer sets up the OTLP trace exporter against the configured
// collector. Insecure gRPC is intentional; the collector is in-network.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("backend-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initLLMClient selects the code generator backend.
func (s *service) initLLMClient() (llm.Client, error) {
	switch s.config.LLMBackend {
	case "openai":
		slog.Info("Using OpenAI generation backend")
		return llm.NewOpenAIClient()
	case "static":
		slog.Info("Using static generation backend (no external calls)")
		return llm.NewStaticClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", s.config.LLMBackend)
	}
}

// initAuthProvider builds the bearer-token resolver. Without a token
// table every request maps to a fixed local account, mirroring how the
// rest of the product behaves without identity infrastructure.
func (s *service) initAuthProvider() (auth.Provider, error) {
	if s.config.AuthTokens == "" {
		slog.Warn("BACKEND_AUTH_TOKENS not set, all requests map to the local account")
		return auth.NopProvider{}, nil
	}
	return auth.NewStaticProvider(s.config.AuthTokens)
}
