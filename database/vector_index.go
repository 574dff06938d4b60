package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/core/index"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	"github.com/siherrmann/docqa/sql"
)

// PostgresIndex is a vector index on Postgres with pgvector.
// Chunks live in the chunks table, each referencing a row in documents.
type PostgresIndex struct {
	db        *helper.Database
	documents *DocumentsDBHandler
	chunks    *ChunksDBHandler
	// writes serialises upserts so tie break order follows call order.
	writes sync.Mutex
}

var _ index.VectorIndex = (*PostgresIndex)(nil)

// NewPostgresIndex creates the extension, functions and tables.
// A dimension of 0 adopts the dimension of an existing chunks table.
func NewPostgresIndex(db *helper.Database, dimension int, force bool) (*PostgresIndex, error) {
	if db == nil {
		return nil, helper.NewError("postgres index", fmt.Errorf("database connection is nil"))
	}

	err := sql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	documents, err := NewDocumentsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("documents handler", err)
	}

	chunks, err := NewChunksDBHandler(db, dimension, force)
	if err != nil {
		return nil, helper.NewError("chunks handler", err)
	}

	return &PostgresIndex{
		db:        db,
		documents: documents,
		chunks:    chunks,
	}, nil
}

// Documents exposes the document table, e.g. to store titles and metadata ahead of indexing.
func (p *PostgresIndex) Documents() *DocumentsDBHandler {
	return p.documents
}

// Chunks exposes the chunk table, e.g. to change the similarity index type.
func (p *PostgresIndex) Chunks() *ChunksDBHandler {
	return p.chunks
}

func (p *PostgresIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	err := index.ValidateChunks(chunks, p.chunks.Dimension())
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	p.writes.Lock()
	defer p.writes.Unlock()
	return p.chunks.UpsertChunks(ctx, chunks)
}

func (p *PostgresIndex) Query(ctx context.Context, vector []float32, topK int, documentRIDs []uuid.UUID) ([]*model.Evidence, error) {
	err := index.ValidateVector(vector, p.chunks.Dimension())
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.Evidence{}, nil
	}
	return p.chunks.SelectChunksBySimilarity(ctx, vector, topK, documentRIDs)
}

// Remove deletes the chunks of a document and its registry row.
func (p *PostgresIndex) Remove(ctx context.Context, documentRID uuid.UUID) error {
	p.writes.Lock()
	defer p.writes.Unlock()

	err := p.chunks.DeleteChunksByDocument(ctx, documentRID)
	if err != nil {
		return helper.NewError("delete chunks", err)
	}
	return p.documents.DeleteDocument(ctx, documentRID)
}

func (p *PostgresIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	return p.chunks.CountChunks(ctx)
}

func (p *PostgresIndex) Reset(ctx context.Context) error {
	p.writes.Lock()
	defer p.writes.Unlock()

	err := p.chunks.DeleteAllChunks(ctx)
	if err != nil {
		return helper.NewError("delete chunks", err)
	}
	return p.documents.DeleteAllDocuments(ctx)
}

func (p *PostgresIndex) Dimension() int {
	return p.chunks.Dimension()
}

func (p *PostgresIndex) Close() error {
	return p.db.Close()
}
