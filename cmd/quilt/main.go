package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiltai/quilt/internal/config"
	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/embed/openai"
	"github.com/quiltai/quilt/internal/pipeline"
	"github.com/quiltai/quilt/internal/secrets"
	"github.com/quiltai/quilt/internal/splitter"
	"github.com/quiltai/quilt/internal/store"
	"github.com/quiltai/quilt/internal/store/memory"
	"github.com/quiltai/quilt/internal/store/qdrant"
)

func main() {
	var (
		configPath string
		indexName  string
		contentKey string
	)

	rootCmd := &cobra.Command{
		Use:   "quilt",
		Short: "Document chunking and vector store ingestion/retrieval engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/quilt.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&indexName, "index", "", "Index (collection) name")
	rootCmd.PersistentFlags().StringVar(&contentKey, "content-key", "content", "Content key of the index")

	var (
		entryID   string
		inputPath string
		asHTML    bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Split, embed and store one document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, indexName, contentKey, entryID, inputPath, asHTML, false, nil)
		},
	}
	ingestCmd.Flags().StringVar(&entryID, "entry", "", "Entry identifier recorded as chunk source")
	ingestCmd.Flags().StringVar(&inputPath, "input", "", "Input file (plain text or HTML)")
	ingestCmd.Flags().BoolVar(&asHTML, "html", false, "Split with the markup-aware splitter")

	var (
		queryText  string
		useHybrid  bool
		limit      int
		alpha      float32
		filterExpr string
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, indexName, contentKey, queryText, useHybrid, limit, alpha, filterExpr)
		},
	}
	searchCmd.Flags().StringVar(&queryText, "query", "", "Query text")
	searchCmd.Flags().BoolVar(&useHybrid, "hybrid", true, "Blend keyword and vector scores")
	searchCmd.Flags().IntVar(&limit, "limit", store.DefaultLimit, "Maximum results")
	searchCmd.Flags().Float32Var(&alpha, "alpha", store.DefaultAlpha, "Hybrid keyword/vector blend in [0,1]")
	searchCmd.Flags().StringVar(&filterExpr, "filter", "", "Filter expression (e.g. 'md.source == \"a\" && md.page > 2')")

	var storeIDs []string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete stored documents by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(configPath, indexName, contentKey, storeIDs)
		},
	}
	deleteCmd.Flags().StringSliceVar(&storeIDs, "ids", nil, "Store-assigned document ids")

	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "Refresh an entry: delete old records, ingest anew",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, indexName, contentKey, entryID, inputPath, asHTML, true, storeIDs)
		},
	}
	resyncCmd.Flags().StringVar(&entryID, "entry", "", "Entry identifier")
	resyncCmd.Flags().StringVar(&inputPath, "input", "", "Input file")
	resyncCmd.Flags().BoolVar(&asHTML, "html", false, "Split with the markup-aware splitter")
	resyncCmd.Flags().StringSliceVar(&storeIDs, "ids", nil, "Previously recorded document ids")

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Reassemble and print an entry's ingested text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(configPath, indexName, contentKey, storeIDs)
		},
	}
	previewCmd.Flags().StringSliceVar(&storeIDs, "ids", nil, "Store-assigned document ids")

	rootCmd.AddCommand(ingestCmd, searchCmd, deleteCmd, resyncCmd, previewCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildPipeline(configPath, indexName, contentKey string, asHTML bool) (*pipeline.Pipeline, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if indexName == "" {
		return nil, nil, fmt.Errorf("--index is required")
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := buildStore(cfg, embedder)
	if err != nil {
		return nil, nil, err
	}

	var split splitter.Splitter
	if asHTML {
		split, err = splitter.NewHTMLSplitter(cfg.Chunking.Size)
	} else {
		split, err = splitter.NewSentenceSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	p, err := pipeline.New(pipeline.Config{
		Store:      st,
		Splitter:   split,
		Embedder:   embedder,
		Index:      indexName,
		ContentKey: contentKey,
		VectorSize: cfg.Store.VectorSize,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return p, func() { st.Close() }, nil
}

// buildEmbedder composes the configured provider with retry and pacing.
// Returns nil when the provider is "none": the backend then computes
// embeddings itself.
func buildEmbedder(cfg *config.Config) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "none":
		return nil, nil
	case "openai", "":
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
		pacer := embed.NewRatePacer(cfg.Embedding.RequestsPerMinute, cfg.Embedding.Burst)
		return embed.NewPacedProvider(provider, pacer), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildStore(cfg *config.Config, embedder embed.Provider) (store.Store, error) {
	backend, err := store.ParseBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	switch backend {
	case store.BackendMemory:
		return memory.New(embedder), nil
	case store.BackendQdrant:
		apiKey, err := storeAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		return qdrant.New(cfg.Store.Host, cfg.Store.Port, apiKey, embedder, cfg.Store.VectorSize)
	default:
		return nil, fmt.Errorf("backend %s not wired", backend)
	}
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

func runIngest(configPath, indexName, contentKey, entryID, inputPath string, asHTML, resync bool, oldIDs []string) error {
	if inputPath == "" {
		return fmt.Errorf("--input is required")
	}
	if entryID == "" {
		entryID = inputPath
	}
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}

	p, closeFn, err := buildPipeline(configPath, indexName, contentKey, asHTML)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	docs := []pipeline.SourceDocument{{Text: string(raw), Metadata: map[string]any{"path": inputPath}}}
	var result pipeline.EntryResult
	if resync {
		result = p.Resync(ctx, entryID, oldIDs, docs)
	} else {
		result = p.Add(ctx, entryID, docs)
	}

	fmt.Printf("status: %s\n", result.Status)
	fmt.Printf("chunks stored: %d (%d bytes)\n", len(result.StoreIDs), result.SizeBytes)
	if result.ErrorSummary != "" {
		fmt.Printf("errors: %s\n", result.ErrorSummary)
	}
	for _, id := range result.StoreIDs {
		fmt.Println(id)
	}
	if result.Status == pipeline.StatusFailed {
		return fmt.Errorf("ingestion failed")
	}
	return nil
}

func runSearch(configPath, indexName, contentKey, queryText string, useHybrid bool, limit int, alpha float32, filterExpr string) error {
	if queryText == "" {
		return fmt.Errorf("--query is required")
	}
	p, closeFn, err := buildPipeline(configPath, indexName, contentKey, false)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := p.Search(ctx, queryText, pipeline.SearchOptions{
		UseHybrid: useHybrid,
		Limit:     limit,
		Alpha:     &alpha,
		Filter:    filterExpr,
	})
	if err != nil {
		return err
	}
	for i, doc := range results {
		fmt.Printf("--- %d (id %s)\n", i+1, doc.ID)
		fmt.Println(strings.TrimSpace(doc.Content))
	}
	return nil
}

func runDelete(configPath, indexName, contentKey string, ids []string) error {
	p, closeFn, err := buildPipeline(configPath, indexName, contentKey, false)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := p.Delete(ctx, ids); err != nil {
		return err
	}
	fmt.Printf("deleted %d documents\n", len(ids))
	return nil
}

func runPreview(configPath, indexName, contentKey string, ids []string) error {
	p, closeFn, err := buildPipeline(configPath, indexName, contentKey, false)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	meta, text, err := p.EntryText(ctx, ids)
	if err != nil {
		return err
	}
	if src, ok := meta[pipeline.MetaSource]; ok {
		fmt.Printf("source: %v\n\n", src)
	}
	fmt.Println(text)
	return nil
}
