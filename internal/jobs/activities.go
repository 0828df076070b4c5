package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/observability"
	"github.com/quiltai/quilt/internal/pipeline"
	"github.com/quiltai/quilt/internal/splitter"
	"github.com/quiltai/quilt/internal/store"
)

// Dependencies holds shared resources injected into activities. The store
// client and the embedding provider (with its shared pacer) are the only
// state shared across concurrent jobs.
type Dependencies struct {
	Store    store.Store
	Embedder embed.Provider
	Chunking ChunkingDefaults
	Logger   *slog.Logger
	Audit    *observability.AuditLogger // optional
}

// ChunkingDefaults configure the splitter built per job.
type ChunkingDefaults struct {
	Splitter string // "sentence" (default), "line" or "html"
	Size     int
	Overlap  int
}

func (d *Dependencies) splitterFor() (splitter.Splitter, error) {
	size, overlap := d.Chunking.Size, d.Chunking.Overlap
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 8
	}
	switch d.Chunking.Splitter {
	case "line":
		return splitter.NewRegexSplitter("\n", size, overlap)
	case "html":
		return splitter.NewHTMLSplitter(size)
	default:
		return splitter.NewSentenceSplitter(size, overlap)
	}
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func (d *Dependencies) pipelineFor(input EntryInput) (*pipeline.Pipeline, error) {
	split, err := d.splitterFor()
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Store:      d.Store,
		Splitter:   split,
		Embedder:   d.Embedder,
		Index:      input.IndexName,
		ContentKey: input.ContentKey,
		Logger:     d.Logger,
	})
}

// IngestActivity runs one entry's add. A failed entry is reported through
// the output status, not an activity error, so the workflow can record it.
func IngestActivity(ctx context.Context, input EntryInput) (EntryOutput, error) {
	p, err := deps.pipelineFor(input)
	if err != nil {
		return EntryOutput{}, err
	}
	started := time.Now()
	result := p.Add(ctx, input.EntryID, input.Documents)
	deps.Audit.LogIngest(input.EntryID, input.IndexName, time.Since(started),
		len(result.StoreIDs), result.SizeBytes, result.ErrorSummary)
	return EntryOutput{
		Status:    result.Status,
		StoreIDs:  result.StoreIDs,
		SizeBytes: result.SizeBytes,
		Error:     result.ErrorSummary,
	}, nil
}

// DeleteActivity removes one entry's recorded documents.
func DeleteActivity(ctx context.Context, input EntryInput) (EntryOutput, error) {
	p, err := deps.pipelineFor(input)
	if err != nil {
		return EntryOutput{}, err
	}
	err = p.Delete(ctx, input.OldStoreIDs)
	deps.Audit.LogDelete(input.EntryID, input.IndexName, len(input.OldStoreIDs), err)
	if err != nil {
		return EntryOutput{}, err
	}
	return EntryOutput{Status: pipeline.StatusReady}, nil
}

// ResyncActivity refreshes one entry.
func ResyncActivity(ctx context.Context, input EntryInput) (EntryOutput, error) {
	p, err := deps.pipelineFor(input)
	if err != nil {
		return EntryOutput{}, err
	}
	started := time.Now()
	result := p.Resync(ctx, input.EntryID, input.OldStoreIDs, input.Documents)
	deps.Audit.LogResync(input.EntryID, input.IndexName, time.Since(started),
		len(result.StoreIDs), result.ErrorSummary)
	return EntryOutput{
		Status:    result.Status,
		StoreIDs:  result.StoreIDs,
		SizeBytes: result.SizeBytes,
		Error:     result.ErrorSummary,
	}, nil
}
