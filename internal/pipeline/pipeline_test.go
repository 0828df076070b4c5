package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quiltai/quilt/internal/splitter"
	"github.com/quiltai/quilt/internal/store/memory"
)

// stubEmbedder returns deterministic vectors and can be poisoned to fail on
// texts containing a marker.
type stubEmbedder struct {
	poison string
	calls  int
}

func (e *stubEmbedder) Name() string { return "stub" }

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.poison != "" && strings.Contains(t, e.poison) {
			return nil, errors.New("stub: refused input")
		}
		out[i] = []float32{float32(len(t)%7) + 1, 1}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, embedder *stubEmbedder) *Pipeline {
	t.Helper()
	split, err := splitter.NewSentenceSplitter(1500, 200)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(Config{
		Store:      memory.New(embedder),
		Splitter:   split,
		Embedder:   embedder,
		Index:      "entries",
		ContentKey: "content",
		VectorSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAddAndSearch(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	ctx := context.Background()

	sentence := "The quick brown gopher jumps over the lazy badger every day. "
	text := strings.Repeat(sentence, 170) // well beyond one chunk

	result := p.Add(ctx, "entry-1", []SourceDocument{{
		Text:     text,
		Metadata: map[string]any{"lang": "en"},
	}})
	if result.Status != StatusReady {
		t.Fatalf("status = %q (%s), want ready", result.Status, result.ErrorSummary)
	}
	if len(result.StoreIDs) < 5 {
		t.Fatalf("got %d chunks, want several", len(result.StoreIDs))
	}
	if result.SizeBytes == 0 {
		t.Error("size not recorded")
	}

	// Every stored chunk respects the configured size bound.
	chunks := make([]string, len(result.StoreIDs))
	for _, id := range result.StoreIDs {
		doc, err := p.store.GetDocumentByID(ctx, "entries", id, "content")
		if err != nil {
			t.Fatal(err)
		}
		if doc == nil {
			t.Fatalf("chunk %s not stored", id)
		}
		if n := len([]rune(doc.Content)); n > 1500 {
			t.Errorf("chunk %s has %d runes", id, n)
		}
		if doc.Metadata[MetaSource] != "entry-1" {
			t.Errorf("chunk %s source = %v", id, doc.Metadata[MetaSource])
		}
		if doc.Metadata["lang"] != "en" {
			t.Errorf("chunk %s lost caller metadata", id)
		}
		ord, ok := doc.Metadata[MetaOrdinal].(int)
		if !ok || ord < 0 || ord >= len(chunks) {
			t.Fatalf("chunk %s ordinal = %v", id, doc.Metadata[MetaOrdinal])
		}
		chunks[ord] = doc.Content
	}

	// Consecutive chunks carry the configured overlap: the tail of each
	// chunk reappears at the start of the next one.
	for i := 1; i < len(chunks); i++ {
		prefix := string([]rune(chunks[i])[:100])
		if !strings.HasSuffix(chunks[i-1], prefix) {
			t.Errorf("chunk %d does not restate the tail of chunk %d: %q", i, i-1, prefix)
		}
	}

	got, err := p.Search(ctx, "lazy badger", SearchOptions{UseHybrid: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	for _, d := range got {
		if d.Metadata[MetaSource] != "entry-1" {
			t.Errorf("result source = %v", d.Metadata[MetaSource])
		}
	}
}

func TestAddIsolatesDocumentFailures(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{poison: "POISON"})
	ctx := context.Background()

	result := p.Add(ctx, "entry-2", []SourceDocument{
		{Text: "A perfectly fine document."},
		{Text: "This one contains POISON somewhere."},
		{Text: "Another fine document."},
	})
	if result.Status != StatusReady {
		t.Fatalf("status = %q, want ready despite one bad document", result.Status)
	}
	if len(result.StoreIDs) != 2 {
		t.Errorf("got %d store ids, want 2", len(result.StoreIDs))
	}
	if !strings.Contains(result.ErrorSummary, "document 1") {
		t.Errorf("summary %q does not name the failed document", result.ErrorSummary)
	}
}

func TestAddFailsWhenNothingStored(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{poison: "POISON"})
	result := p.Add(context.Background(), "entry-3", []SourceDocument{
		{Text: "Only POISON here."},
	})
	if result.Status != StatusFailed {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if result.ErrorSummary == "" {
		t.Error("expected an error summary")
	}
}

func TestAddNothingToIngest(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	for _, docs := range [][]SourceDocument{
		nil,
		{{Text: "   "}}, // splits to zero chunks
	} {
		result := p.Add(context.Background(), "entry-empty", docs)
		if result.Status != StatusFailed {
			t.Errorf("status = %q, want failed", result.Status)
		}
		if result.ErrorSummary == "" {
			t.Error("failed entry carries no error summary")
		}
	}
}

func TestAddCanceled(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := p.Add(ctx, "entry-4", []SourceDocument{
		{Text: "First document."},
		{Text: "Second document."},
	})
	if result.Status != StatusFailed {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.ErrorSummary, "canceled") {
		t.Errorf("summary = %q", result.ErrorSummary)
	}
}

func TestResyncReplacesOldRecords(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	ctx := context.Background()

	first := p.Add(ctx, "entry-5", []SourceDocument{{Text: "Old content lives here."}})
	if first.Status != StatusReady {
		t.Fatalf("first add: %q", first.ErrorSummary)
	}

	second := p.Resync(ctx, "entry-5", first.StoreIDs, []SourceDocument{{Text: "New content replaces it."}})
	if second.Status != StatusReady {
		t.Fatalf("resync: %q", second.ErrorSummary)
	}
	for _, id := range first.StoreIDs {
		doc, err := p.store.GetDocumentByID(ctx, "entries", id, "content")
		if err != nil {
			t.Fatal(err)
		}
		if doc != nil {
			t.Errorf("stale record %s survived resync", id)
		}
	}
	if len(second.StoreIDs) == 0 {
		t.Error("resync stored nothing")
	}
}

func TestDelete(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	ctx := context.Background()

	result := p.Add(ctx, "entry-6", []SourceDocument{{Text: "Here today."}})
	if result.Status != StatusReady {
		t.Fatal(result.ErrorSummary)
	}
	if err := p.Delete(ctx, result.StoreIDs); err != nil {
		t.Fatal(err)
	}
	// Deleting the same ids again is harmless.
	if err := p.Delete(ctx, result.StoreIDs); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestEntryTextOrdersByOrdinal(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	ctx := context.Background()

	sentence := "Sentences accumulate until the chunk budget forces a split boundary. "
	text := strings.Repeat(sentence, 60)
	result := p.Add(ctx, "entry-7", []SourceDocument{{Text: text}})
	if result.Status != StatusReady || len(result.StoreIDs) < 2 {
		t.Fatalf("need a multi-chunk entry, got %d chunks", len(result.StoreIDs))
	}

	// Id order must not matter; the stored ordinals drive reassembly.
	reversed := make([]string, len(result.StoreIDs))
	for i, id := range result.StoreIDs {
		reversed[len(reversed)-1-i] = id
	}
	_, joined, err := p.EntryText(ctx, reversed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(joined, "Sentences accumulate") {
		t.Errorf("preview starts mid-document: %q", joined[:60])
	}
}

func TestSearchRejectsBadFilter(t *testing.T) {
	p := newTestPipeline(t, &stubEmbedder{})
	_, err := p.Search(context.Background(), "anything", SearchOptions{
		Filter: `a == "x" && b == "y" || c == "z"`,
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewValidation(t *testing.T) {
	split, err := splitter.NewSentenceSplitter(100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{Splitter: split, Index: "x", ContentKey: "content"}); err == nil {
		t.Error("expected error for missing store")
	}
	if _, err := New(Config{Store: memory.New(nil), Index: "x", ContentKey: "content"}); err == nil {
		t.Error("expected error for missing splitter")
	}
	if _, err := New(Config{Store: memory.New(nil), Splitter: split}); err == nil {
		t.Error("expected error for missing index")
	}
}
