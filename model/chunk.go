package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded span of a document's text and the unit of embedding and retrieval.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Source      string    `json:"source"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	StartPos    int       `json:"start_pos"`
	EndPos      int       `json:"end_pos"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkID builds the index key of a chunk from its document and position.
func ChunkID(documentRID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentRID.String(), chunkIndex)
}
