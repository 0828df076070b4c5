package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/quiltai/quilt/internal/config"
	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/embed/openai"
	"github.com/quiltai/quilt/internal/jobs"
	"github.com/quiltai/quilt/internal/observability"
	"github.com/quiltai/quilt/internal/secrets"
	"github.com/quiltai/quilt/internal/server"
	"github.com/quiltai/quilt/internal/store"
	"github.com/quiltai/quilt/internal/store/memory"
	"github.com/quiltai/quilt/internal/store/qdrant"
)

func main() {
	configPath := "configs/quilt.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx := context.Background()
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "quilt-worker",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}
	st, err := buildStore(cfg, embedder)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Output,
	})
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	jobs.SetDependencies(&jobs.Dependencies{
		Store:    st,
		Embedder: embedder,
		Chunking: jobs.ChunkingDefaults{
			Splitter: cfg.Chunking.Splitter,
			Size:     cfg.Chunking.Size,
			Overlap:  cfg.Chunking.Overlap,
		},
		Logger:   logger,
		Audit:    audit,
	})

	host := cfg.Temporal.Host
	if host == "" {
		host = "localhost:7233"
	}
	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = "quilt-ingestion"
	}
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal: %v", err)
	}

	w, err := jobs.StartWorker(c, taskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	logger.Info("worker started", "task_queue", taskQueue)

	health := server.NewHealthServer()
	health.RegisterCheck(storeCheck(st))
	go func() {
		if err := health.ListenAndServe(":8086"); err != nil {
			logger.Warn("health server stopped", "error", err)
		}
	}()
	health.SetReady(true)

	shutdown := server.NewShutdownHandler(30*time.Second, logger)
	shutdown.RegisterHook("health", 5, func(ctx context.Context) error {
		health.SetReady(false)
		return health.Shutdown(ctx)
	})
	shutdown.RegisterHook("worker", 20, func(context.Context) error {
		w.Stop()
		c.Close()
		return nil
	})
	shutdown.RegisterHook("store", 80, func(context.Context) error { return st.Close() })
	shutdown.RegisterHook("audit", 85, func(context.Context) error { return audit.Close() })
	shutdown.RegisterHook("tracing", 90, tp.Shutdown)
	shutdown.Start()
	shutdown.Wait()
}

func buildEmbedder(cfg *config.Config) (embed.Provider, error) {
	if cfg.Embedding.Provider == "none" {
		return nil, nil
	}
	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		sm, err := secrets.NewManager("env", "QUILT_", "")
		if err != nil {
			return nil, err
		}
		apiKey = sm.GetOrDefault(context.Background(), secrets.KeyEmbeddingAPIKey, "")
	}
	var provider embed.Provider = openai.New(apiKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	provider = embed.NewRetryProvider(provider, &embed.RetryConfig{
		NumTries: cfg.Embedding.NumTries,
		MinDelay: cfg.Embedding.MinDelay,
		MaxDelay: cfg.Embedding.MaxDelay,
		Backoff:  cfg.Embedding.Backoff,
	})
	// One pacer for the whole worker: every concurrent job shares it so
	// the aggregate call rate honors the configured budget.
	pacer := embed.NewRatePacer(cfg.Embedding.RequestsPerMinute, cfg.Embedding.Burst)
	return embed.NewPacedProvider(provider, pacer), nil
}

func buildStore(cfg *config.Config, embedder embed.Provider) (store.Store, error) {
	backend, err := store.ParseBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	if backend == store.BackendQdrant {
		apiKey, err := storeAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		return qdrant.New(cfg.Store.Host, cfg.Store.Port, apiKey, embedder, cfg.Store.VectorSize)
	}
	return memory.New(embedder), nil
}

// storeAPIKey resolves the vector store credential, falling back to the
// secrets manager when the config carries none.
func storeAPIKey(cfg *config.Config) (string, error) {
	if cfg.Store.APIKey != "" {
		return cfg.Store.APIKey, nil
	}
	sm, err := secrets.NewManager("env", "QUILT_", "")
	if err != nil {
		return "", err
	}
	return sm.GetOrDefault(context.Background(), secrets.KeyStoreAPIKey, ""), nil
}

func storeCheck(st store.Store) server.HealthChecker {
	return func(ctx context.Context) server.HealthCheck {
		// A cheap idempotent call doubles as a connectivity probe.
		_, err := st.GetOrCreateIndex(ctx, "quilt-health", store.Schema{ContentKey: "content", VectorSize: 4})
		if err != nil {
			return server.HealthCheck{Name: "vector-store", Status: server.HealthStatusUnhealthy, Message: err.Error()}
		}
		return server.HealthCheck{Name: "vector-store", Status: server.HealthStatusHealthy}
	}
}
