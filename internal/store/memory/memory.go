// Package memory implements the vector store port with an in-process index.
// It is the reference backend for tests and small single-node deployments.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/filter"
	"github.com/quiltai/quilt/internal/store"
)

type index struct {
	schema store.Schema
	docs   map[string]store.Document
	order  []string // insertion order, for stable ranking ties
}

// Store is an in-memory vector index. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	indexes  map[string]*index
	embedder embed.Provider
}

var _ store.Store = (*Store)(nil)

// New creates an in-memory store. The embedder computes embeddings for
// documents submitted without one and for query texts; it may be nil when
// every caller precomputes embeddings.
func New(embedder embed.Provider) *Store {
	return &Store{
		indexes:  make(map[string]*index),
		embedder: embedder,
	}
}

func (s *Store) GetOrCreateIndex(_ context.Context, name string, schema store.Schema) (store.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[name]; ok {
		return idx.schema, nil
	}
	if schema.ContentKey == "" {
		return store.Schema{}, fmt.Errorf("create index %q: content key is required", name)
	}
	s.indexes[name] = &index{schema: schema, docs: make(map[string]store.Document)}
	return schema, nil
}

func (s *Store) AddText(ctx context.Context, indexName string, doc store.Document) (string, error) {
	ids, err := s.AddTexts(ctx, indexName, []store.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *Store) AddTexts(ctx context.Context, indexName string, docs []store.Document) ([]string, error) {
	idx, err := s.lookup(indexName)
	if err != nil {
		return nil, err
	}

	var ids []string
	var failed []store.FailedWrite
	for i, doc := range docs {
		if doc.ContentKey != "" && doc.ContentKey != idx.schema.ContentKey {
			failed = append(failed, store.FailedWrite{Position: i, Cause: &store.ContentKeyError{
				Index: indexName, Got: doc.ContentKey, Want: idx.schema.ContentKey,
			}})
			continue
		}
		if doc.Embedding == nil && s.embedder != nil {
			vectors, err := s.embedder.Embed(ctx, []string{doc.Content})
			if err != nil {
				failed = append(failed, store.FailedWrite{Position: i, Cause: err})
				continue
			}
			doc.Embedding = vectors[0]
		}
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		doc.ContentKey = idx.schema.ContentKey

		s.mu.Lock()
		if _, exists := idx.docs[doc.ID]; !exists {
			idx.order = append(idx.order, doc.ID)
		}
		idx.docs[doc.ID] = doc
		s.mu.Unlock()
		ids = append(ids, doc.ID)
	}
	if len(failed) > 0 {
		return ids, &store.WriteError{Index: indexName, Failed: failed}
	}
	return ids, nil
}

func (s *Store) DeleteDocument(_ context.Context, indexName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return nil
	}
	if _, ok := idx.docs[id]; !ok {
		return nil
	}
	delete(idx.docs, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) DeleteIndex(_ context.Context, indexName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, indexName)
	return nil
}

func (s *Store) GetDocumentByID(_ context.Context, indexName, id, contentKey string) (*store.Document, error) {
	idx, err := s.lookup(indexName)
	if err != nil {
		return nil, err
	}
	if contentKey != idx.schema.ContentKey {
		return nil, &store.ContentKeyError{Index: indexName, Got: contentKey, Want: idx.schema.ContentKey}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := idx.docs[id]
	if !ok {
		return nil, nil
	}
	out := doc
	return &out, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, indexName string, q store.Query) ([]store.Document, error) {
	return s.search(ctx, indexName, q, false)
}

func (s *Store) HybridSearch(ctx context.Context, indexName string, q store.Query) ([]store.Document, error) {
	return s.search(ctx, indexName, q, true)
}

func (s *Store) Close() error { return nil }

func (s *Store) search(ctx context.Context, indexName string, q store.Query, hybrid bool) ([]store.Document, error) {
	if err := q.Normalize(); err != nil {
		return nil, &store.RetrievalError{Index: indexName, Op: "search", Cause: err}
	}
	idx, err := s.lookup(indexName)
	if err != nil {
		return nil, &store.RetrievalError{Index: indexName, Op: "search", Cause: err}
	}
	if q.ContentKey != idx.schema.ContentKey {
		return nil, &store.ContentKeyError{Index: indexName, Got: q.ContentKey, Want: idx.schema.ContentKey}
	}

	var queryVec []float32
	if s.embedder != nil {
		vectors, err := s.embedder.Embed(ctx, []string{q.Text})
		if err != nil {
			return nil, &store.RetrievalError{Index: indexName, Op: "embed query", Cause: err}
		}
		queryVec = vectors[0]
	}

	type scored struct {
		doc   store.Document
		score float32
	}

	// Normalize guarantees a non-nil alpha.
	alpha := *q.Alpha

	s.mu.RLock()
	var candidates []scored
	for _, id := range idx.order {
		doc := idx.docs[id]
		if q.Filter != nil && !matches(q.Filter, doc) {
			continue
		}
		vecScore := cosine(queryVec, doc.Embedding)
		var score float32
		if hybrid {
			score = alpha*vecScore + (1-alpha)*keywordScore(q.Text, doc.Content)
		} else {
			score = vecScore
		}
		candidates = append(candidates, scored{doc: doc, score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	results := make([]store.Document, 0, len(candidates))
	for _, c := range candidates {
		doc := c.doc
		meta := resultMetadata(doc, q)
		if hybrid {
			meta[store.MetaRelevance] = c.score
		} else {
			meta[store.MetaDistance] = c.score
		}
		doc.Metadata = meta
		results = append(results, doc)
	}
	return results, nil
}

func (s *Store) lookup(name string) (*index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %q does not exist", name)
	}
	return idx, nil
}

// resultMetadata copies the requested properties from the stored document.
// When the query requests nothing specific, all metadata is attached.
func resultMetadata(doc store.Document, q store.Query) map[string]any {
	meta := make(map[string]any)
	requested := append(append([]string{}, q.Properties...), q.MetadataProperties...)
	if len(requested) == 0 {
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		return meta
	}
	for _, k := range requested {
		if v, ok := doc.Metadata[k]; ok {
			meta[k] = v
		}
	}
	return meta
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// empty or the dimensions differ.
func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// keywordScore is the fraction of query terms present in the content.
func keywordScore(query, content string) float32 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}

// matches evaluates a filter node against a document's properties. The
// document's content is addressable under its content key.
func matches(node filter.Node, doc store.Document) bool {
	switch n := node.(type) {
	case filter.Combinator:
		for _, op := range n.Operands {
			ok := matches(op, doc)
			if n.Op == filter.And && !ok {
				return false
			}
			if n.Op == filter.Or && ok {
				return true
			}
		}
		return n.Op == filter.And
	case filter.Comparison:
		return compare(n, doc)
	default:
		return false
	}
}

func compare(cmp filter.Comparison, doc store.Document) bool {
	var value any
	if cmp.Path == doc.ContentKey {
		value = doc.Content
	} else {
		var ok bool
		value, ok = doc.Metadata[cmp.Path]
		if !ok {
			return false
		}
	}

	if cmp.IsInt {
		n, ok := asInt(value)
		if !ok {
			return false
		}
		switch cmp.Op {
		case filter.Eq:
			return n == cmp.IntValue
		case filter.Gt:
			return n > cmp.IntValue
		case filter.Lt:
			return n < cmp.IntValue
		}
		return false
	}

	s := fmt.Sprintf("%v", value)
	switch cmp.Op {
	case filter.Eq:
		return s == cmp.StrValue
	case filter.Like:
		needle := strings.Trim(cmp.StrValue, "*")
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case filter.Gt:
		return s > cmp.StrValue
	case filter.Lt:
		return s < cmp.StrValue
	}
	return false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
