package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

const (
	LocalEmbeddingModel     = "sentence-transformers/all-MiniLM-L6-v2"
	LocalEmbeddingDimension = 384
)

// DefaultEmbedder creates an embedder using a local sentence transformer model.
// It produces 384-dimensional embeddings and needs no network access once the model is downloaded.
// The returned close function releases the hugot session.
func DefaultEmbedder() (EmbedFunc, func() error, error) {
	modelPath, err := helper.PrepareModel(LocalEmbeddingModel, "")
	if err != nil {
		return nil, nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	embed := localEmbedFunc(func(texts []string) ([][]float32, error) {
		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	})

	return embed, session.Destroy, nil
}

// localEmbedFunc adapts a local model run to an EmbedFunc.
// Every failure is reported as model.ErrEmbeddingUnavailable.
func localEmbedFunc(run func(texts []string) ([][]float32, error)) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return [][]float32{}, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, err)
		}

		embeddings, err := run(texts)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate embeddings: %w", model.ErrEmbeddingUnavailable, err)
		}
		if len(embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: embedding count mismatch: got %d embeddings for %d texts", model.ErrEmbeddingUnavailable, len(embeddings), len(texts))
		}

		return embeddings, nil
	}
}
