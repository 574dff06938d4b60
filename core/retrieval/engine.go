package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/core/index"
	"github.com/siherrmann/docqa/core/pipeline"
	"github.com/siherrmann/docqa/model"
)

// Engine turns a question into ranked evidence from the vector index.
type Engine struct {
	embed  pipeline.EmbedFunc
	index  index.VectorIndex
	logger *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(embed pipeline.EmbedFunc, vectorIndex index.VectorIndex, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embed:  embed,
		index:  vectorIndex,
		logger: logger,
	}
}

// Retrieve embeds the question and returns the evidence above the similarity threshold,
// limited to the first MaxDocuments distinct documents in rank order.
// No evidence is an empty slice, not an error.
func (e *Engine) Retrieve(ctx context.Context, question string, config *model.QueryConfig) ([]*model.Evidence, error) {
	if config == nil {
		defaults := model.DefaultQueryConfig()
		config = &defaults
	}

	vectors, err := e.embed(ctx, []string{question})
	if err != nil {
		if errors.Is(err, model.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 question embedding, got %d", model.ErrEmbeddingUnavailable, len(vectors))
	}

	filter := e.documentFilter(config.DocumentRIDs, config.MaxDocuments)

	candidates, err := e.index.Query(ctx, vectors[0], config.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRetrievalFailed, err)
	}

	evidence := filterEvidence(candidates, config.SimilarityThreshold, config.MaxDocuments)

	e.logger.Debug(
		"Retrieved evidence",
		slog.Int("candidates", len(candidates)),
		slog.Int("evidence", len(evidence)),
		slog.Int("top_k", config.TopK),
	)

	return evidence, nil
}

// documentFilter de-duplicates the requested documents and cuts them to maxDocuments.
func (e *Engine) documentFilter(documentRIDs []uuid.UUID, maxDocuments int) []uuid.UUID {
	if len(documentRIDs) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]bool, len(documentRIDs))
	filter := make([]uuid.UUID, 0, len(documentRIDs))
	for _, rid := range documentRIDs {
		if seen[rid] {
			continue
		}
		seen[rid] = true
		filter = append(filter, rid)
	}

	if maxDocuments > 0 && len(filter) > maxDocuments {
		e.logger.Warn(
			"Document filter exceeds the document limit, extra documents are ignored",
			slog.Int("requested", len(filter)),
			slog.Int("max_documents", maxDocuments),
		)
		filter = filter[:maxDocuments]
	}

	return filter
}

// filterEvidence drops items below the threshold and items of documents beyond
// the first maxDocuments, then renumbers the ranks.
func filterEvidence(candidates []*model.Evidence, threshold float64, maxDocuments int) []*model.Evidence {
	evidence := []*model.Evidence{}
	documents := map[uuid.UUID]bool{}
	for _, item := range candidates {
		if item == nil || item.Chunk == nil || item.Score < threshold {
			continue
		}
		rid := item.Chunk.DocumentRID
		if !documents[rid] {
			if maxDocuments > 0 && len(documents) >= maxDocuments {
				continue
			}
			documents[rid] = true
		}
		evidence = append(evidence, &model.Evidence{Chunk: item.Chunk, Score: item.Score, Rank: len(evidence)})
	}
	return evidence
}
