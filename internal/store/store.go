// Package store defines the vector store port: the contract every semantic
// index backend implements, plus the backend registry.
package store

import (
	"context"
	"fmt"

	"github.com/quiltai/quilt/internal/filter"
)

// Document is the unit stored in and retrieved from an index. ContentKey
// names the metadata field that holds the retrievable text; backends may
// store the text as just another property.
type Document struct {
	ID         string
	ContentKey string
	Content    string
	Metadata   map[string]any
	// Embedding, when set, was precomputed by the caller and is sent
	// verbatim; otherwise the backend computes it from Content.
	Embedding []float32
}

// Metadata keys attached to search results.
const (
	MetaDistance  = "distance"  // similarity search: distance/certainty score
	MetaRelevance = "relevance" // hybrid search: blended relevance score
)

// DefaultLimit is used when a query does not set one.
const DefaultLimit = 4

// DefaultAlpha is the hybrid keyword/vector blend default.
const DefaultAlpha float32 = 0.75

// Query describes one similarity or hybrid search.
type Query struct {
	Text       string
	ContentKey string
	Limit      int
	// Properties are additional stored properties to attach to results.
	Properties []string
	// MetadataProperties are metadata fields to attach to results.
	MetadataProperties []string
	// Filter restricts candidates before ranking. May be nil.
	Filter filter.Node
	// Alpha blends keyword (0) and vector (1) scores in hybrid search.
	// Nil selects DefaultAlpha; an explicit 0 means pure keyword.
	Alpha *float32
}

func (q Query) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultLimit
}

// Normalize applies defaults and validates the query.
func (q *Query) Normalize() error {
	if q.ContentKey == "" {
		return fmt.Errorf("query: content key is required")
	}
	q.Limit = q.limit()
	if q.Alpha == nil {
		a := DefaultAlpha
		q.Alpha = &a
	}
	if *q.Alpha < 0 || *q.Alpha > 1 {
		return fmt.Errorf("query: alpha %v outside [0,1]", *q.Alpha)
	}
	return nil
}

// Schema fixes an index's content key (and vector size where the backend
// needs it up front) at creation time.
type Schema struct {
	ContentKey string
	VectorSize int
}

// Store is the port every vector store backend implements. All operations
// take the index name explicitly; the store itself holds no per-index state
// beyond backend handles and cached schemas.
type Store interface {
	// GetOrCreateIndex is idempotent: it returns the existing schema when
	// the index already exists and creates it otherwise.
	GetOrCreateIndex(ctx context.Context, index string, schema Schema) (Schema, error)

	// AddText stores one document and returns its store-assigned id.
	AddText(ctx context.Context, index string, doc Document) (string, error)

	// AddTexts stores documents as one backend-native batch. It returns
	// the ids of successfully stored documents; when only some entries
	// fail the error is a *WriteError carrying the failed subset, and the
	// returned ids still cover the successes.
	AddTexts(ctx context.Context, index string, docs []Document) ([]string, error)

	// DeleteDocument is idempotent: deleting a missing id is not an error.
	DeleteDocument(ctx context.Context, index, id string) error

	// DeleteIndex is idempotent: deleting a missing index is not an error.
	DeleteIndex(ctx context.Context, index string) error

	// GetDocumentByID returns nil, nil when the id does not exist.
	GetDocumentByID(ctx context.Context, index, id, contentKey string) (*Document, error)

	// SimilaritySearch runs vector-only nearest-neighbor search, applying
	// the query filter before ranking and attaching a distance score to
	// result metadata.
	SimilaritySearch(ctx context.Context, index string, q Query) ([]Document, error)

	// HybridSearch blends keyword and vector scores by q.Alpha and
	// attaches a relevance score to result metadata.
	HybridSearch(ctx context.Context, index string, q Query) ([]Document, error)

	// Close releases backend resources.
	Close() error
}
