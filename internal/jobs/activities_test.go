package jobs

import (
	"context"
	"testing"

	"github.com/quiltai/quilt/internal/pipeline"
	"github.com/quiltai/quilt/internal/store/memory"
)

func setupTestDeps() *Dependencies {
	d := &Dependencies{
		Store:    memory.New(nil),
		Chunking: ChunkingDefaults{Size: 200, Overlap: 20},
	}
	SetDependencies(d)
	return d
}

func TestSetDependencies(t *testing.T) {
	d := setupTestDeps()
	if deps == nil {
		t.Fatal("deps is nil after SetDependencies")
	}
	if deps.Store != d.Store {
		t.Error("store not injected")
	}
}

func TestIngestActivity(t *testing.T) {
	setupTestDeps()

	input := EntryInput{
		EntryID:    "entry-1",
		IndexName:  "notes",
		ContentKey: "content",
		Documents: []pipeline.SourceDocument{
			{Text: "A short note about nothing in particular.", Metadata: map[string]any{"kind": "note"}},
		},
	}

	out, err := IngestActivity(context.Background(), input)
	if err != nil {
		t.Fatalf("IngestActivity failed: %v", err)
	}
	if out.Status != pipeline.StatusReady {
		t.Fatalf("status = %q (%s), want ready", out.Status, out.Error)
	}
	if len(out.StoreIDs) == 0 {
		t.Error("expected store ids")
	}
	if out.SizeBytes == 0 {
		t.Error("expected size to be recorded")
	}
}

func TestIngestActivityEmptyDocuments(t *testing.T) {
	setupTestDeps()

	out, err := IngestActivity(context.Background(), EntryInput{
		EntryID:    "entry-2",
		IndexName:  "notes",
		ContentKey: "content",
	})
	if err != nil {
		t.Fatalf("IngestActivity failed: %v", err)
	}
	// Nothing stored means the entry is reported failed, not erroring the
	// activity so the workflow records the status.
	if out.Status != pipeline.StatusFailed {
		t.Errorf("status = %q, want failed", out.Status)
	}
}

func TestDeleteActivity(t *testing.T) {
	setupTestDeps()
	ctx := context.Background()

	ingested, err := IngestActivity(ctx, EntryInput{
		EntryID:    "entry-3",
		IndexName:  "notes",
		ContentKey: "content",
		Documents:  []pipeline.SourceDocument{{Text: "To be removed shortly."}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := DeleteActivity(ctx, EntryInput{
		EntryID:     "entry-3",
		IndexName:   "notes",
		ContentKey:  "content",
		OldStoreIDs: ingested.StoreIDs,
	})
	if err != nil {
		t.Fatalf("DeleteActivity failed: %v", err)
	}
	if out.Status != pipeline.StatusReady {
		t.Errorf("status = %q, want ready", out.Status)
	}
}

func TestResyncActivity(t *testing.T) {
	setupTestDeps()
	ctx := context.Background()

	first, err := IngestActivity(ctx, EntryInput{
		EntryID:    "entry-4",
		IndexName:  "notes",
		ContentKey: "content",
		Documents:  []pipeline.SourceDocument{{Text: "The original wording."}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := ResyncActivity(ctx, EntryInput{
		EntryID:     "entry-4",
		IndexName:   "notes",
		ContentKey:  "content",
		OldStoreIDs: first.StoreIDs,
		Documents:   []pipeline.SourceDocument{{Text: "The revised wording."}},
	})
	if err != nil {
		t.Fatalf("ResyncActivity failed: %v", err)
	}
	if out.Status != pipeline.StatusReady {
		t.Fatalf("status = %q (%s)", out.Status, out.Error)
	}
	for _, id := range first.StoreIDs {
		doc, err := deps.Store.GetDocumentByID(ctx, "notes", id, "content")
		if err != nil {
			t.Fatal(err)
		}
		if doc != nil {
			t.Errorf("stale record %s survived resync", id)
		}
	}
}

func TestSplitterForDefaults(t *testing.T) {
	d := &Dependencies{}
	if _, err := d.splitterFor(); err != nil {
		t.Fatalf("zero-value chunking must fall back to defaults: %v", err)
	}
	d = &Dependencies{Chunking: ChunkingDefaults{Size: 100, Overlap: 100}}
	if _, err := d.splitterFor(); err != nil {
		t.Fatalf("oversized overlap must be clamped: %v", err)
	}
	for _, kind := range []string{"line", "html", "sentence"} {
		d = &Dependencies{Chunking: ChunkingDefaults{Splitter: kind, Size: 500, Overlap: 50}}
		if _, err := d.splitterFor(); err != nil {
			t.Fatalf("splitter %q: %v", kind, err)
		}
	}
}
