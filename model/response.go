package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SourceRef references an evidence item cited by an answer.
type SourceRef struct {
	Evidence    int       `json:"evidence"` // Index into the evidence list passed to synthesis
	ChunkID     string    `json:"chunk_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Source      string    `json:"source"`
	ChunkIndex  int       `json:"chunk_index"`
	Score       float64   `json:"score"`
}

// NewSourceRef builds the reference for evidence item i.
func NewSourceRef(i int, evidence *Evidence) SourceRef {
	ref := SourceRef{
		Evidence: i,
		Score:    evidence.Score,
	}
	if evidence.Chunk != nil {
		ref.ChunkID = evidence.Chunk.ID
		ref.DocumentRID = evidence.Chunk.DocumentRID
		ref.Source = evidence.Chunk.Source
		ref.ChunkIndex = evidence.Chunk.ChunkIndex
	}
	return ref
}

// QueryResponse is the structured answer to one question.
type QueryResponse struct {
	Answer    string      `json:"answer"`
	Reasoning string      `json:"reasoning"`
	Entities  []Entity    `json:"entities"`
	Sources   []SourceRef `json:"sources,omitempty"`
	// Degraded marks answers produced after the model failed the output contract.
	Degraded bool `json:"-"`
}

// MarshalJSON always writes entities as an array.
func (r QueryResponse) MarshalJSON() ([]byte, error) {
	type alias QueryResponse
	out := alias(r)
	if out.Entities == nil {
		out.Entities = []Entity{}
	}
	return json.Marshal(out)
}
