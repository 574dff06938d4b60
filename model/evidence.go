package model

// Evidence is a chunk retrieved for a question, ranked by descending similarity.
type Evidence struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"` // Cosine similarity
	Rank  int     `json:"rank"`  // Position in the ranked list, starting at 0
}
