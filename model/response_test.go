package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryResponseMarshalJSON(t *testing.T) {
	t.Run("Nil entities are written as empty array", func(t *testing.T) {
		bytes, err := json.Marshal(QueryResponse{Answer: "Paris", Reasoning: "Stated in [1]."})
		require.NoError(t, err)

		assert.JSONEq(t, `{"answer":"Paris","reasoning":"Stated in [1].","entities":[]}`, string(bytes))
	})

	t.Run("Entities only expose text and type", func(t *testing.T) {
		response := QueryResponse{
			Answer:   "Paris",
			Entities: []Entity{{Text: "Paris", Type: "LOC", Score: 0.99, Start: 0, End: 5}},
		}

		bytes, err := json.Marshal(response)
		require.NoError(t, err)

		assert.JSONEq(t, `{"answer":"Paris","reasoning":"","entities":[{"text":"Paris","type":"LOC"}]}`, string(bytes))
	})

	t.Run("Degraded flag is not serialized", func(t *testing.T) {
		bytes, err := json.Marshal(&QueryResponse{Answer: "x", Degraded: true})
		require.NoError(t, err)
		assert.NotContains(t, string(bytes), "degraded")
	})
}

func TestNewSourceRef(t *testing.T) {
	t.Run("Copies chunk location", func(t *testing.T) {
		rid := uuid.New()
		evidence := &Evidence{
			Chunk: &Chunk{ID: ChunkID(rid, 2), DocumentRID: rid, Source: "a.txt", ChunkIndex: 2},
			Score: 0.8,
		}

		ref := NewSourceRef(1, evidence)

		assert.Equal(t, 1, ref.Evidence)
		assert.Equal(t, ChunkID(rid, 2), ref.ChunkID)
		assert.Equal(t, rid, ref.DocumentRID)
		assert.Equal(t, "a.txt", ref.Source)
		assert.Equal(t, 2, ref.ChunkIndex)
		assert.Equal(t, 0.8, ref.Score)
	})
}
