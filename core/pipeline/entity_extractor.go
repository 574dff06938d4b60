package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

// DefaultEntityModel is an ONNX export of distilbert-NER.
// It detects PER, ORG, LOC and MISC entities.
const DefaultEntityModel = "KnightsAnalytics/distilbert-NER"

// DefaultEntityExtractor creates an entity extractor using a NER model.
// An empty modelName selects DefaultEntityModel.
// The returned close function releases the hugot session.
func DefaultEntityExtractor(modelName string) (EntityExtractFunc, func() error, error) {
	if modelName == "" {
		modelName = DefaultEntityModel
	}
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	extract := func(ctx context.Context, text string) ([]model.Entity, error) {
		if strings.TrimSpace(text) == "" {
			return []model.Entity{}, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}
		if len(result.Entities) == 0 {
			return []model.Entity{}, nil
		}

		entities := make([]model.Entity, 0, len(result.Entities[0]))
		for _, entity := range result.Entities[0] {
			entities = append(entities, model.Entity{
				Text:  strings.TrimSpace(entity.Word),
				Type:  normalizeEntityType(entity.Entity),
				Score: entity.Score,
				Start: int(entity.Start),
				End:   int(entity.End),
			})
		}

		return DeduplicateEntities(entities), nil
	}

	return extract, session.Destroy, nil
}

// DeduplicateEntities keeps the first occurrence of every (type, text) pair
// and drops entities with empty text.
func DeduplicateEntities(entities []model.Entity) []model.Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]model.Entity, 0, len(entities))
	for _, entity := range entities {
		if entity.Text == "" {
			continue
		}
		key := entity.Type + "\x00" + entity.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, entity)
	}
	return out
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
