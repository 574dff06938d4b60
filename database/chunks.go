package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	loadSql "github.com/siherrmann/docqa/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	Dimension() int
	UpsertChunks(ctx context.Context, chunks []*model.Chunk) error
	SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, documentRIDs []uuid.UUID) ([]*model.Evidence, error)
	DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error
	CountChunks(ctx context.Context) (model.IndexStats, error)
	DeleteAllChunks(ctx context.Context) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewChunksDBHandler creates a new chunks database handler.
// An existing chunks table fixes the embedding dimension: an embeddingDim of 0 adopts it,
// any other different value is a dimension mismatch. A new table needs a positive dimension.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	stored, err := chunksDbHandler.storedDimension()
	if err != nil {
		return nil, helper.NewError("select dimension", err)
	}

	switch {
	case stored > 0 && embeddingDim > 0 && stored != embeddingDim:
		return nil, helper.NewError("dimension check", fmt.Errorf("%w: chunks table has %d dimensions, requested %d", model.ErrDimensionMismatch, stored, embeddingDim))
	case stored > 0:
		embeddingDim = stored
	case embeddingDim <= 0:
		return nil, helper.NewError("dimension check", fmt.Errorf("embedding dimension must be positive for a new chunks table"))
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}
	chunksDbHandler.dimension = embeddingDim

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table with its similarity index if it does not exist.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init chunks", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

func (h *ChunksDBHandler) storedDimension() (int, error) {
	var dimension int
	err := h.db.Instance.QueryRow(`SELECT select_chunks_dimension();`).Scan(&dimension)
	return dimension, err
}

// Dimension returns the embedding dimension of the chunks table.
func (h *ChunksDBHandler) Dimension() int {
	return h.dimension
}

// UpsertChunks writes all chunks in one transaction.
// A chunk id that already exists keeps its row id and with it its position in tie breaks.
func (h *ChunksDBHandler) UpsertChunks(ctx context.Context, chunks []*model.Chunk) error {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return helper.NewError("prepare", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadata, err := chunk.Metadata.Marshal()
		if err != nil {
			return helper.NewError("marshal metadata", err)
		}

		var id int64
		err = stmt.QueryRowContext(
			ctx,
			chunk.ID,
			chunk.DocumentRID,
			chunk.Source,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.StartPos,
			chunk.EndPos,
			pgvector.NewVector(chunk.Embedding),
			string(metadata),
		).Scan(&id, &chunk.CreatedAt)
		if err != nil {
			return helper.NewError(fmt.Sprintf("upsert chunk %s", chunk.ID), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectChunksByDocument retrieves all chunks of a document in chunk order.
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	chunks := []*model.Chunk{}
	for rows.Next() {
		var id int64
		chunk, err := scanChunk(rows, &id)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity returns the limit most similar chunks by cosine similarity.
// Equal scores are ordered by row id, which is the first insertion order.
// An empty documentRIDs searches all documents.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, documentRIDs []uuid.UUID) ([]*model.Evidence, error) {
	var filter interface{}
	if len(documentRIDs) > 0 {
		rids := make([]string, len(documentRIDs))
		for i, rid := range documentRIDs {
			rids[i] = rid.String()
		}
		filter = pq.Array(rids)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3::uuid[])`,
		pgvector.NewVector(embedding),
		limit,
		filter,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	evidence := []*model.Evidence{}
	for rows.Next() {
		var id int64
		var score float64
		chunk, err := scanChunk(rows, &id, &score)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		evidence = append(evidence, &model.Evidence{Chunk: chunk, Score: score, Rank: len(evidence)})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return evidence, nil
}

// DeleteChunksByDocument deletes all chunks of a document.
func (h *ChunksDBHandler) DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// CountChunks counts chunks and the documents they belong to.
func (h *ChunksDBHandler) CountChunks(ctx context.Context) (model.IndexStats, error) {
	stats := model.IndexStats{Dimension: h.dimension}
	err := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM count_chunks()`).Scan(&stats.Chunks, &stats.Documents)
	if err != nil {
		return stats, helper.NewError("scan", err)
	}
	return stats, nil
}

// DeleteAllChunks empties the chunks table. The table and its dimension stay.
func (h *ChunksDBHandler) DeleteAllChunks(ctx context.Context) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT delete_all_chunks()`)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// scanChunk scans the shared chunk columns followed by extra trailing columns.
func scanChunk(row rowScanner, id *int64, extra ...interface{}) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	var embedding pgvector.Vector
	dest := []interface{}{
		id,
		&chunk.ID,
		&chunk.DocumentRID,
		&chunk.Source,
		&chunk.ChunkIndex,
		&chunk.Content,
		&chunk.StartPos,
		&chunk.EndPos,
		&embedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}
	chunk.Embedding = embedding.Slice()
	return chunk, nil
}
