// Package app assembles the dialogue engine from configuration. The HTTP
// server, the CLI and the MCP server all boot through Build.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/config"
	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/embedding"
	"github.com/Harshitk-cp/paper-agent/internal/events"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
	"github.com/Harshitk-cp/paper-agent/internal/service"
	"github.com/Harshitk-cp/paper-agent/internal/store"
)

// AgentNames are the agents every deployment registers.
var AgentNames = []string{
	domain.AgentOrchestrator,
	domain.AgentStructurer,
	domain.AgentMethodologist,
	domain.AgentObserver,
}

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Options struct {
	LLMProvider          string
	LLMAPIKey            string
	LLMMaxRetries        int
	LLMRequestsPerSecond float64
	EmbeddingProvider    string
	EmbeddingAPIKey      string
	StoreBackend         string
	DatabaseURL          string
	SQLitePath           string
	MigrationsPath       string
	AgentConfigDir       string
	EventsDir            string
	StructuredLogDir     string
	MaxHops              int

	// LLMClient replaces the provider client when set.
	LLMClient domain.LLMClient
	// Embedder replaces the embedding provider when set.
	Embedder domain.EmbeddingClient
}

// OptionsFromEnv reads Options from the flat env getters. config.Load must
// have run first.
func OptionsFromEnv() Options {
	return Options{
		LLMProvider:          config.LLMProvider(),
		LLMAPIKey:            config.LLMAPIKey(),
		LLMMaxRetries:        config.LLMMaxRetries(),
		LLMRequestsPerSecond: config.LLMRequestsPerSecond(),
		EmbeddingProvider:    config.EmbeddingProvider(),
		EmbeddingAPIKey:      config.EmbeddingAPIKey(),
		StoreBackend:         config.StoreBackend(),
		DatabaseURL:          config.DatabaseURL(),
		SQLitePath:           config.SQLitePath(),
		MigrationsPath:       config.MigrationsPath(),
		AgentConfigDir:       config.AgentConfigDir(),
		EventsDir:            config.EventsDir(),
		StructuredLogDir:     config.StructuredLogDir(),
		MaxHops:              config.MaxHopsPerTurn(),
	}
}

// Components is a booted engine with everything it owns.
type Components struct {
	Configs   config.AgentConfigs
	Bus       *events.Bus
	Trace     *events.StructuredLogger
	Memory    *service.MemoryManager
	Telemetry *service.Telemetry
	Catalog   *service.CatalogService
	Review    *service.ReviewService
	Engine    *service.Engine

	ping    func(ctx context.Context) error
	closers []func() error
}

// Ping checks the catalog backend.
func (c *Components) Ping(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Close releases the trace files and the catalog backend, newest first.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Build loads agent configs, opens the catalog, connects the LLM and
// embedding backends and wires the engine. A missing or invalid agent config
// comes back as *config.LoadError.
func Build(ctx context.Context, opts Options, logger *zap.Logger) (*Components, error) {
	configs, err := config.LoadAgentConfigs(opts.AgentConfigDir, AgentNames...)
	if err != nil {
		return nil, err
	}

	c := &Components{Configs: configs}
	fail := func(err error) (*Components, error) {
		_ = c.Close()
		return nil, err
	}

	llmClient, err := newLLMClient(opts, logger)
	if err != nil {
		return fail(err)
	}
	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = embedding.NewClient(opts.EmbeddingProvider, opts.EmbeddingAPIKey)
		if err != nil {
			return fail(fmt.Errorf("embedding client: %w", err))
		}
	}

	concepts, vectors, err := c.openCatalog(ctx, opts, logger)
	if err != nil {
		return fail(err)
	}

	c.Bus, err = events.NewBus(opts.EventsDir, logger)
	if err != nil {
		return fail(fmt.Errorf("event bus: %w", err))
	}
	c.Trace, err = events.NewStructuredLogger(opts.StructuredLogDir)
	if err != nil {
		return fail(fmt.Errorf("structured logger: %w", err))
	}
	c.closers = append(c.closers, c.Trace.Close)

	c.Memory = service.NewMemoryManager()
	c.Telemetry = service.NewTelemetry(c.Bus, c.Trace, c.Memory, logger)
	rt := service.NewAgentRuntime(llmClient, configs, logger)
	c.Catalog = service.NewCatalogService(concepts, vectors, embedder, logger)
	c.Review = service.NewReviewService(rt, service.NewMemoryCheckpointStore(), c.Telemetry, logger)
	c.Engine = service.NewEngine(
		rt,
		service.NewObserverService(rt, c.Catalog, c.Telemetry, logger),
		service.NewOrchestratorService(rt, c.Telemetry, logger),
		service.NewStructurerService(rt, c.Telemetry, logger),
		service.NewMethodologistService(rt, c.Telemetry, logger),
		c.Review,
		c.Memory,
		c.Telemetry,
		logger,
	)
	c.Engine.SetMaxHops(opts.MaxHops)

	logger.Info("engine ready",
		zap.Strings("agents", configs.Names()),
		zap.String("llm_provider", opts.LLMProvider),
		zap.String("embedding_provider", opts.EmbeddingProvider),
		zap.String("store_backend", opts.StoreBackend))
	return c, nil
}

func newLLMClient(opts Options, logger *zap.Logger) (domain.LLMClient, error) {
	if opts.LLMClient != nil {
		return opts.LLMClient, nil
	}
	client, err := llm.NewClient(opts.LLMProvider, opts.LLMAPIKey)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	if opts.LLMProvider == llm.ProviderMock {
		return client, nil
	}
	cfg := llm.DefaultRetryConfig()
	if opts.LLMMaxRetries > 0 {
		cfg.MaxAttempts = opts.LLMMaxRetries
	}
	cfg.RequestsPerSecond = opts.LLMRequestsPerSecond
	return llm.NewRetryingClient(client, cfg, logger), nil
}

func (c *Components) openCatalog(ctx context.Context, opts Options, logger *zap.Logger) (domain.ConceptStore, domain.VectorIndex, error) {
	switch opts.StoreBackend {
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		applied, err := store.Migrate(ctx, pool, opts.MigrationsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("versions", applied))
		}
		c.ping = pool.Ping
		return store.NewConceptStore(pool), store.NewVectorIndex(pool), nil

	case BackendSQLite, "":
		db, err := store.OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, db.Close)
		c.ping = db.PingContext
		return store.NewSQLiteConceptStore(db), store.NewSQLiteVectorIndex(db), nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (valid options: postgres, sqlite)", opts.StoreBackend)
	}
}
