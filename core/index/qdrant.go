package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

const scrollPageSize = 256

// QdrantConfig addresses a Qdrant server over gRPC.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// QdrantIndex is a VectorIndex backed by a Qdrant collection with cosine distance.
// Point ids are derived from chunk ids, the insertion sequence is kept in the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrant connects to Qdrant and creates the collection if it does not exist.
// An existing collection with another vector size fails with model.ErrDimensionMismatch.
func NewQdrant(ctx context.Context, cfg QdrantConfig, dimension int, logger *slog.Logger) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: qdrant collection needs a positive dimension", model.ErrDimensionMismatch)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, helper.NewError("connect qdrant", err)
	}

	q := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  dimension,
		logger:     logger,
	}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Opened qdrant index", slog.String("host", cfg.Host), slog.String("collection", cfg.Collection), slog.Int("dimension", dimension))
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return helper.NewError("check collection", err)
	}
	if !exists {
		return q.createCollection(ctx)
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return helper.NewError("collection info", err)
	}
	size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size != q.dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d", model.ErrDimensionMismatch, q.collection, size, q.dimension)
	}
	return nil
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return helper.NewError("create collection", err)
	}
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "document_rid",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return helper.NewError("create document index", err)
	}
	return nil
}

// Dimension returns the vector size of the collection.
func (q *QdrantIndex) Dimension() int {
	return q.dimension
}

// pointID maps a chunk id to a stable UUID point id.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// Upsert writes all chunks and keeps the sequence of points that already exist.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if err := ValidateChunks(chunks, q.dimension); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(chunks))
	for i, chunk := range chunks {
		ids[i] = pointID(chunk.ID)
	}
	existing, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayloadInclude("chunk_id", "seq"),
	})
	if err != nil {
		return helper.NewError("read existing points", err)
	}
	seqs := make(map[string]int64, len(existing))
	for _, point := range existing {
		seqs[point.GetPayload()["chunk_id"].GetStringValue()] = point.GetPayload()["seq"].GetIntegerValue()
	}

	base := time.Now().UnixNano()
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		seq, ok := seqs[chunk.ID]
		if !ok {
			seq = base + int64(i)
		}
		metadata, err := chunk.Metadata.Marshal()
		if err != nil {
			return helper.NewError("marshal metadata", err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":     chunk.ID,
				"document_rid": chunk.DocumentRID.String(),
				"source":       chunk.Source,
				"chunk_index":  chunk.ChunkIndex,
				"content":      chunk.Content,
				"start_pos":    chunk.StartPos,
				"end_pos":      chunk.EndPos,
				"metadata":     string(metadata),
				"seq":          seq,
			}),
		}
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return helper.NewError("upsert points", err)
	}

	q.logger.Debug("Upserted chunks", slog.Int("num_chunks", len(chunks)))
	return nil
}

func documentFilter(documentRIDs []uuid.UUID) *qdrant.Filter {
	if len(documentRIDs) == 0 {
		return nil
	}
	filter := &qdrant.Filter{}
	for _, rid := range documentRIDs {
		filter.Should = append(filter.Should, qdrant.NewMatch("document_rid", rid.String()))
	}
	return filter
}

// Query asks Qdrant for twice topK points and ranks them locally,
// so that ties at the cut are resolved by insertion sequence.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, documentRIDs []uuid.UUID) ([]*model.Evidence, error) {
	if err := ValidateVector(vector, q.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.Evidence{}, nil
	}

	limit := uint64(topK * 2)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         documentFilter(documentRIDs),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, helper.NewError("query points", err)
	}

	candidates := make([]candidate, 0, len(points))
	for _, point := range points {
		chunk, seq, err := chunkFromPayload(point.GetPayload())
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{chunk: chunk, score: float64(point.GetScore()), seq: seq})
	}

	return rank(candidates, topK), nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) (*model.Chunk, int64, error) {
	rid, err := uuid.Parse(payload["document_rid"].GetStringValue())
	if err != nil {
		return nil, 0, helper.NewError("parse document rid", err)
	}
	chunk := &model.Chunk{
		ID:          payload["chunk_id"].GetStringValue(),
		DocumentRID: rid,
		Source:      payload["source"].GetStringValue(),
		ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
		Content:     payload["content"].GetStringValue(),
		StartPos:    int(payload["start_pos"].GetIntegerValue()),
		EndPos:      int(payload["end_pos"].GetIntegerValue()),
	}
	if err := chunk.Metadata.Unmarshal(payload["metadata"].GetStringValue()); err != nil {
		return nil, 0, err
	}
	return chunk, payload["seq"].GetIntegerValue(), nil
}

// Remove deletes all points of a document.
func (q *QdrantIndex) Remove(ctx context.Context, documentRID uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_rid", documentRID.String())},
		}),
	})
	if err != nil {
		return helper.NewError("remove document", err)
	}
	return nil
}

// Stats counts points exactly and scrolls the payload for distinct documents.
func (q *QdrantIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return model.IndexStats{}, helper.NewError("count points", err)
	}

	documents := map[string]bool{}
	var offset *qdrant.PointId
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude("document_rid"),
		})
		if err != nil {
			return model.IndexStats{}, helper.NewError("scroll points", err)
		}
		// The offset point is returned again as first point of the next page.
		start := 0
		if offset != nil && len(points) > 0 {
			start = 1
		}
		for _, point := range points[start:] {
			documents[point.GetPayload()["document_rid"].GetStringValue()] = true
		}
		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	return model.IndexStats{
		Chunks:    int(count),
		Documents: len(documents),
		Dimension: q.dimension,
	}, nil
}

// Reset drops and recreates the collection.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return helper.NewError("delete collection", err)
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}
	q.logger.Info("Reset index", slog.String("collection", q.collection))
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
