package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/model"
)

// VectorIndex stores chunk embeddings and answers cosine similarity queries.
// Entries are keyed by chunk id. Results with equal score are ordered by first insertion.
type VectorIndex interface {
	// Upsert inserts or replaces chunks. A re-upserted chunk keeps its insertion position.
	// The whole batch is rejected if any embedding has the wrong dimension.
	Upsert(ctx context.Context, chunks []*model.Chunk) error
	// Query returns at most topK chunks by descending similarity,
	// restricted to documentRIDs when it is not empty.
	Query(ctx context.Context, vector []float32, topK int, documentRIDs []uuid.UUID) ([]*model.Evidence, error)
	Remove(ctx context.Context, documentRID uuid.UUID) error
	Stats(ctx context.Context) (model.IndexStats, error)
	// Reset removes all entries but keeps the dimension.
	Reset(ctx context.Context) error
	Dimension() int
	Close() error
}

// ValidateChunks checks every chunk of a batch before anything is written.
func ValidateChunks(chunks []*model.Chunk, dimension int) error {
	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == "" {
			return fmt.Errorf("chunk without id")
		}
		if len(chunk.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d", model.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), dimension)
		}
	}
	return nil
}

// ValidateVector checks a query vector.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", model.ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
