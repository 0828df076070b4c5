// Package qdrant implements the vector store port against a Qdrant server
// over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/quiltai/quilt/internal/embed"
	"github.com/quiltai/quilt/internal/store"
)

// hybridOverfetch widens the vector candidate set before the keyword blend
// re-ranks it client-side.
const hybridOverfetch = 4

// Store is a Qdrant-backed vector store.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    embed.Provider
	vectorSize  int

	mu      sync.RWMutex
	schemas map[string]store.Schema
}

var _ store.Store = (*Store)(nil)

// apiKeyCreds sends the Qdrant api-key header with every RPC.
type apiKeyCreds struct {
	key string
}

func (c apiKeyCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": c.key}, nil
}

func (c apiKeyCreds) RequireTransportSecurity() bool { return false }

// New connects to a Qdrant server. apiKey may be empty for unauthenticated
// deployments. The embedder computes embeddings for documents and queries
// that arrive without one; vectorSize is used when creating collections.
func New(host string, port int, apiKey string, embedder embed.Provider, vectorSize int) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if apiKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds{key: apiKey}))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		embedder:    embedder,
		vectorSize:  vectorSize,
		schemas:     make(map[string]store.Schema),
	}, nil
}

func (s *Store) GetOrCreateIndex(ctx context.Context, index string, schema store.Schema) (store.Schema, error) {
	s.mu.RLock()
	cached, ok := s.schemas[index]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: index})
	switch {
	case err == nil:
		// Collection already exists; adopt the caller's schema. Qdrant
		// holds no content-key metadata of its own.
	case status.Code(err) == codes.NotFound:
		if schema.VectorSize == 0 {
			schema.VectorSize = s.vectorSize
		}
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: index,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(schema.VectorSize),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return store.Schema{}, fmt.Errorf("create collection %q: %w", index, err)
		}
	default:
		return store.Schema{}, fmt.Errorf("get collection %q: %w", index, err)
	}

	s.mu.Lock()
	s.schemas[index] = schema
	s.mu.Unlock()
	return schema, nil
}

func (s *Store) AddText(ctx context.Context, index string, doc store.Document) (string, error) {
	ids, err := s.AddTexts(ctx, index, []store.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddTexts embeds any document without a precomputed vector, then commits
// all embeddable documents in one upsert. Per-document embedding failures
// are reported through *store.WriteError while the rest of the batch still
// commits.
func (s *Store) AddTexts(ctx context.Context, index string, docs []store.Document) ([]string, error) {
	contentKey := s.contentKey(index)

	var points []*pb.PointStruct
	var ids []string
	var failed []store.FailedWrite

	for i, doc := range docs {
		if contentKey != "" && doc.ContentKey != "" && doc.ContentKey != contentKey {
			failed = append(failed, store.FailedWrite{Position: i, Cause: &store.ContentKeyError{
				Index: index, Got: doc.ContentKey, Want: contentKey,
			}})
			continue
		}
		vector := doc.Embedding
		if vector == nil {
			if s.embedder == nil {
				failed = append(failed, store.FailedWrite{Position: i, Cause: fmt.Errorf("no embedding and no embedder configured")})
				continue
			}
			vectors, err := s.embedder.Embed(ctx, []string{doc.Content})
			if err != nil {
				failed = append(failed, store.FailedWrite{Position: i, Cause: err})
				continue
			}
			vector = vectors[0]
		}

		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}
		key := doc.ContentKey
		if key == "" {
			key = contentKey
		}
		payload := map[string]*pb.Value{
			key: {Kind: &pb.Value_StringValue{StringValue: doc.Content}},
		}
		for k, v := range doc.Metadata {
			payload[k] = toValue(v)
		}
		points = append(points, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			Payload: payload,
		})
		ids = append(ids, id)
	}

	if len(points) > 0 {
		if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: index,
			Points:         points,
		}); err != nil {
			return nil, &store.WriteError{Index: index, Cause: err}
		}
	}
	if len(failed) > 0 {
		return ids, &store.WriteError{Index: index, Failed: failed}
	}
	return ids, nil
}

func (s *Store) DeleteDocument(ctx context.Context, index, id string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: index,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{
					{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				}},
			},
		},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete document %s from %q: %w", id, index, err)
	}
	return nil
}

func (s *Store) DeleteIndex(ctx context.Context, index string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: index})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete collection %q: %w", index, err)
	}
	s.mu.Lock()
	delete(s.schemas, index)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetDocumentByID(ctx context.Context, index, id, contentKey string) (*store.Document, error) {
	if known := s.contentKey(index); known != "" && contentKey != known {
		return nil, &store.ContentKeyError{Index: index, Got: contentKey, Want: known}
	}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: index,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, &store.RetrievalError{Index: index, Op: "get document", Cause: err}
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	doc := fromPayload(resp.Result[0].Id.GetUuid(), resp.Result[0].Payload, contentKey)
	return &doc, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, index string, q store.Query) ([]store.Document, error) {
	if err := s.checkQuery(index, &q); err != nil {
		return nil, err
	}
	points, err := s.vectorSearch(ctx, index, q, q.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]store.Document, 0, len(points))
	for _, pt := range points {
		doc := fromPayload(pt.Id.GetUuid(), pt.Payload, q.ContentKey)
		doc.Metadata = requested(doc.Metadata, q)
		doc.Metadata[store.MetaDistance] = pt.Score
		results = append(results, doc)
	}
	return results, nil
}

// HybridSearch over-fetches vector candidates and re-ranks them with a
// keyword term-overlap score blended by alpha. Qdrant has no native
// keyword/vector fusion over this API surface, so the blend happens here.
func (s *Store) HybridSearch(ctx context.Context, index string, q store.Query) ([]store.Document, error) {
	if err := s.checkQuery(index, &q); err != nil {
		return nil, err
	}
	points, err := s.vectorSearch(ctx, index, q, q.Limit*hybridOverfetch)
	if err != nil {
		return nil, err
	}

	type scored struct {
		doc   store.Document
		score float32
	}
	// checkQuery normalized the query, so alpha is always set.
	alpha := *q.Alpha
	candidates := make([]scored, 0, len(points))
	for _, pt := range points {
		doc := fromPayload(pt.Id.GetUuid(), pt.Payload, q.ContentKey)
		score := alpha*pt.Score + (1-alpha)*keywordScore(q.Text, doc.Content)
		candidates = append(candidates, scored{doc: doc, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	results := make([]store.Document, 0, len(candidates))
	for _, c := range candidates {
		doc := c.doc
		doc.Metadata = requested(doc.Metadata, q)
		doc.Metadata[store.MetaRelevance] = c.score
		results = append(results, doc)
	}
	return results, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) vectorSearch(ctx context.Context, index string, q store.Query, limit int) ([]*pb.ScoredPoint, error) {
	if s.embedder == nil {
		return nil, &store.RetrievalError{Index: index, Op: "search", Cause: fmt.Errorf("no embedder configured")}
	}
	qf, err := toFilter(q.Filter)
	if err != nil {
		return nil, &store.RetrievalError{Index: index, Op: "translate filter", Cause: err}
	}
	vectors, err := s.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, &store.RetrievalError{Index: index, Op: "embed query", Cause: err}
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: index,
		Vector:         vectors[0],
		Limit:          uint64(limit),
		Filter:         qf,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, &store.RetrievalError{Index: index, Op: "search", Cause: err}
	}
	return resp.Result, nil
}

func (s *Store) checkQuery(index string, q *store.Query) error {
	if err := q.Normalize(); err != nil {
		return &store.RetrievalError{Index: index, Op: "search", Cause: err}
	}
	if known := s.contentKey(index); known != "" && q.ContentKey != known {
		return &store.ContentKeyError{Index: index, Got: q.ContentKey, Want: known}
	}
	return nil
}

func (s *Store) contentKey(index string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[index].ContentKey
}

func fromPayload(id string, payload map[string]*pb.Value, contentKey string) store.Document {
	doc := store.Document{ID: id, ContentKey: contentKey, Metadata: make(map[string]any)}
	for k, v := range payload {
		if k == contentKey {
			doc.Content = v.GetStringValue()
			continue
		}
		doc.Metadata[k] = fromValue(v)
	}
	return doc
}

func requested(meta map[string]any, q store.Query) map[string]any {
	want := append(append([]string{}, q.Properties...), q.MetadataProperties...)
	if len(want) == 0 {
		return meta
	}
	out := make(map[string]any, len(want))
	for _, k := range want {
		if v, ok := meta[k]; ok {
			out[k] = v
		}
	}
	return out
}

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

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case uint:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}
