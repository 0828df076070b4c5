// Package pipeline orchestrates splitting, embedding and vector storage for
// ingestion jobs and answers search requests. It is the only component the
// surrounding platform talks to.
//
// The pipeline is stateless between calls: everything it needs (entry ids,
// store ids, source documents) is passed in by the caller on every call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/filter"
	"github.com/quiltai/quilt/internal/observability"
	"github.com/quiltai/quilt/internal/splitter"
	"github.com/quiltai/quilt/internal/store"
)

// Status is the lifecycle state of an ingested entry.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Metadata keys the pipeline attaches to every stored chunk.
const (
	MetaSource  = "source"
	MetaOrdinal = "ordinal"
)

// SourceDocument is the extractor's output for one logical document: the
// pipeline makes no assumption about the original file format.
type SourceDocument struct {
	Text     string
	Metadata map[string]any
}

// EntryResult reports the outcome of an Add or Resync for one entry.
type EntryResult struct {
	Status    Status
	StoreIDs  []string
	SizeBytes int64
	// ErrorSummary is a short display string, not a stack trace. Empty
	// when every document ingested cleanly.
	ErrorSummary string
}

// SearchOptions shape one search call.
type SearchOptions struct {
	UseHybrid bool
	Limit     int
	// Alpha is the hybrid keyword/vector blend; nil uses the store
	// default, an explicit 0 requests a pure keyword ranking.
	Alpha *float32
	// Filter is a DSL expression per the filter package; empty means no
	// filter. A malformed expression fails before any backend round-trip.
	Filter string
}

// Pipeline wires one datasource's splitter, embedder and vector store. A
// Pipeline instance owns its store client; concurrent jobs for different
// entries may share the Pipeline because the store and embedder wrappers it
// holds are themselves safe for concurrent use.
type Pipeline struct {
	store      store.Store
	split      splitter.Splitter
	embedder   embed.Provider // optional; nil delegates embedding to the backend
	index      string
	contentKey string
	vectorSize int
	log        *slog.Logger
}

// Config assembles a Pipeline.
type Config struct {
	Store      store.Store
	Splitter   splitter.Splitter
	Embedder   embed.Provider
	Index      string
	ContentKey string
	VectorSize int
	Logger     *slog.Logger
}

// New creates a pipeline for one logical datasource.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if cfg.Splitter == nil {
		return nil, errors.New("pipeline: splitter is required")
	}
	if cfg.Index == "" || cfg.ContentKey == "" {
		return nil, errors.New("pipeline: index and content key are required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:      cfg.Store,
		split:      cfg.Splitter,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		contentKey: cfg.ContentKey,
		vectorSize: cfg.VectorSize,
		log:        log,
	}, nil
}

// Add splits, embeds and stores every source document of one entry. A bad
// document never fails its siblings: its error lands in the result summary
// while the rest of the batch commits. The entry ends Ready when at least
// one document stored, Failed otherwise.
//
// Cancellation is checked before each chunk embedding so oversized jobs can
// be aborted between chunks.
func (p *Pipeline) Add(ctx context.Context, entryID string, docs []SourceDocument) EntryResult {
	ctx, span := observability.StartIngestSpan(ctx, entryID, p.index)
	defer span.End()

	if _, err := p.store.GetOrCreateIndex(ctx, p.index, store.Schema{
		ContentKey: p.contentKey,
		VectorSize: p.vectorSize,
	}); err != nil {
		observability.RecordError(span, err)
		return EntryResult{Status: StatusFailed, ErrorSummary: summarize(err)}
	}

	result := EntryResult{Status: StatusProcessing}
	var failures []string
	totalChunks := 0

	for i, doc := range docs {
		ids, size, err := p.addOne(ctx, entryID, doc)
		result.StoreIDs = append(result.StoreIDs, ids...)
		result.SizeBytes += size
		totalChunks += len(ids)
		if err != nil {
			if ctx.Err() != nil {
				// The job was canceled; stop instead of burning
				// through the remaining documents.
				failures = append(failures, "canceled")
				break
			}
			p.log.Warn("document ingestion failed",
				"entry", entryID, "document", i, "error", err)
			failures = append(failures, fmt.Sprintf("document %d: %s", i, summarize(err)))
		}
	}

	if len(result.StoreIDs) > 0 {
		result.Status = StatusReady
	} else {
		result.Status = StatusFailed
		// A failed entry always names a reason, even when no document
		// produced an error because there was nothing to store.
		if len(failures) == 0 {
			failures = append(failures, "no documents to ingest")
		}
	}
	result.ErrorSummary = strings.Join(failures, "; ")
	observability.RecordIngestMetrics(span, totalChunks, result.SizeBytes)
	if result.Status == StatusFailed && len(failures) > 0 {
		observability.RecordError(span, errors.New(result.ErrorSummary))
	}
	return result
}

func (p *Pipeline) addOne(ctx context.Context, entryID string, doc SourceDocument) ([]string, int64, error) {
	texts, err := p.split.Split(doc.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("split: %w", err)
	}
	chunks := splitter.Chunks(entryID, texts)

	documents := make([]store.Document, 0, len(chunks))
	var size int64
	for _, chunk := range chunks {
		// Cancelable between chunks: each embedding call may block on
		// network and rate-limit sleeps.
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		d := store.Document{
			ContentKey: p.contentKey,
			Content:    chunk.Text,
			Metadata:   chunkMetadata(chunk, doc.Metadata),
		}
		if p.embedder != nil {
			vectors, err := p.embedder.Embed(ctx, []string{chunk.Text})
			if err != nil {
				return nil, 0, fmt.Errorf("embed chunk %d: %w", chunk.Ordinal, err)
			}
			d.Embedding = vectors[0]
		}
		size += int64(len(chunk.Text))
		documents = append(documents, d)
	}
	if len(documents) == 0 {
		return nil, 0, nil
	}

	ids, err := p.store.AddTexts(ctx, p.index, documents)
	var werr *store.WriteError
	if errors.As(err, &werr) && len(ids) > 0 {
		// Partial write: keep the successes, surface the failed subset.
		return ids, size, werr
	}
	if err != nil {
		return nil, 0, err
	}
	return ids, size, nil
}

// Delete removes every recorded document of an entry. Ids the backend no
// longer knows are tolerated.
func (p *Pipeline) Delete(ctx context.Context, storeIDs []string) error {
	for _, id := range storeIDs {
		if err := p.store.DeleteDocument(ctx, p.index, id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	return nil
}

// DeleteIndex drops the whole index when the owning datasource is deleted.
func (p *Pipeline) DeleteIndex(ctx context.Context) error {
	return p.store.DeleteIndex(ctx, p.index)
}

// Resync refreshes an entry: best-effort delete of the old records, then a
// fresh Add. A delete failure is logged, not fatal — a dangling old record
// must not block refreshing the entry.
func (p *Pipeline) Resync(ctx context.Context, entryID string, oldStoreIDs []string, docs []SourceDocument) EntryResult {
	if err := p.Delete(ctx, oldStoreIDs); err != nil {
		p.log.Warn("resync: stale records not fully deleted", "entry", entryID, "error", err)
	}
	return p.Add(ctx, entryID, docs)
}

// Search answers one query against the entry's index, hybrid by default.
// The filter expression is parsed before any backend round-trip.
func (p *Pipeline) Search(ctx context.Context, queryText string, opts SearchOptions) ([]store.Document, error) {
	ctx, span := observability.StartSearchSpan(ctx, p.index, opts.UseHybrid)
	defer span.End()

	var node filter.Node
	if opts.Filter != "" {
		parsed, err := filter.Parse(opts.Filter)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		node = parsed
	}

	q := store.Query{
		Text:       queryText,
		ContentKey: p.contentKey,
		Limit:      opts.Limit,
		Filter:     node,
		Alpha:      opts.Alpha,
	}

	var (
		results []store.Document
		err     error
	)
	if opts.UseHybrid {
		results, err = p.store.HybridSearch(ctx, p.index, q)
	} else {
		results, err = p.store.SimilaritySearch(ctx, p.index, q)
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return results, nil
}

// EntryText fetches the recorded documents of an entry, orders them by their
// stored ordinal and concatenates their text for preview. The merged
// metadata of the first available document is returned alongside.
func (p *Pipeline) EntryText(ctx context.Context, storeIDs []string) (map[string]any, string, error) {
	type part struct {
		ordinal int
		text    string
	}
	var parts []part
	var meta map[string]any

	for _, id := range storeIDs {
		doc, err := p.store.GetDocumentByID(ctx, p.index, id, p.contentKey)
		if err != nil {
			return nil, "", fmt.Errorf("get document %s: %w", id, err)
		}
		if doc == nil {
			continue
		}
		if meta == nil {
			meta = doc.Metadata
		}
		ordinal := 0
		if v, ok := doc.Metadata[MetaOrdinal]; ok {
			if n, ok := toInt(v); ok {
				ordinal = n
			}
		}
		parts = append(parts, part{ordinal: ordinal, text: doc.Content})
	}

	sort.SliceStable(parts, func(i, j int) bool { return parts[i].ordinal < parts[j].ordinal })
	texts := make([]string, len(parts))
	for i, pt := range parts {
		texts[i] = pt.text
	}
	return meta, strings.Join(texts, "\n"), nil
}

func chunkMetadata(chunk splitter.Chunk, base map[string]any) map[string]any {
	meta := make(map[string]any, len(base)+2)
	for k, v := range base {
		meta[k] = v
	}
	meta[MetaSource] = chunk.SourceRef
	meta[MetaOrdinal] = int(chunk.Ordinal)
	return meta
}

// summarize keeps user-visible error strings short.
func summarize(err error) string {
	s := err.Error()
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
