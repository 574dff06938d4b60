package index

import (
	"sort"

	"github.com/siherrmann/docqa/model"
)

// candidate is a scored chunk with its insertion sequence.
type candidate struct {
	chunk *model.Chunk
	score float64
	seq   int64
}

// rank orders candidates by descending score, then by insertion sequence, and keeps topK.
func rank(candidates []candidate, topK int) []*model.Evidence {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	evidence := make([]*model.Evidence, len(candidates))
	for i, c := range candidates {
		evidence[i] = &model.Evidence{Chunk: c.chunk, Score: c.score, Rank: i}
	}
	return evidence
}
