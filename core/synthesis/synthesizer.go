package synthesis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/docqa/core/llm"
	"github.com/siherrmann/docqa/model"
)

const (
	DefaultContextBudget = 6000

	InsufficientInformationAnswer = "The provided documents do not contain enough information to answer this question."
	DegradedAnswer                = "Error: Could not produce a structured answer from the model response."
)

// Synthesizer answers a question from ranked evidence with a reasoning model.
type Synthesizer struct {
	chat          llm.ChatFunc
	contextBudget int
	logger        *slog.Logger
}

// NewSynthesizer creates a synthesizer. A non-positive budget uses DefaultContextBudget.
func NewSynthesizer(chat llm.ChatFunc, contextBudget int, logger *slog.Logger) *Synthesizer {
	if contextBudget <= 0 {
		contextBudget = DefaultContextBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		chat:          chat,
		contextBudget: contextBudget,
		logger:        logger,
	}
}

// Synthesize returns a structured answer for question based on evidence.
// A reply violating the JSON contract is retried once with a correction instruction
// and otherwise turned into a degraded response. Only chat failures are returned as
// model.ErrSynthesisFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, evidence []*model.Evidence) (*model.QueryResponse, error) {
	included, contextBlock := buildContext(evidence, s.contextBudget)
	if len(included) == 0 {
		reasoning := "No document passages relevant to the question were found."
		if len(evidence) > 0 {
			reasoning = "The relevant document passages exceed the context budget."
			s.logger.Warn(
				"Top evidence exceeds context budget",
				slog.Int("context_budget", s.contextBudget),
				slog.Int("evidence", len(evidence)),
			)
		}
		return &model.QueryResponse{
			Answer:    InsufficientInformationAnswer,
			Reasoning: reasoning,
			Entities:  []model.Entity{},
		}, nil
	}
	if len(included) < len(evidence) {
		s.logger.Debug("Dropped evidence over context budget", slog.Int("included", len(included)), slog.Int("dropped", len(evidence)-len(included)))
	}

	messages := buildMessages(question, contextBlock)
	raw, err := s.chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSynthesisFailed, err)
	}

	reply, validationErr := parseReply(raw)
	if validationErr != nil {
		s.logger.Warn("Model reply failed validation, retrying", slog.Any("error", validationErr))

		raw, err = s.chat(ctx, correctionMessages(messages, raw, validationErr))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrSynthesisFailed, err)
		}
		reply, validationErr = parseReply(raw)
		if validationErr != nil {
			s.logger.Warn("Model reply failed validation after retry", slog.Any("error", validationErr))
			return degradedResponse(raw, validationErr), nil
		}
	}

	return &model.QueryResponse{
		Answer:    reply.Answer,
		Reasoning: reply.Reasoning,
		Entities:  []model.Entity{},
		Sources:   citeSources(reply.CitedSources, included),
	}, nil
}

// citeSources maps 1-based markers to the included evidence.
// Markers outside the included range and repeated markers are dropped.
func citeSources(markers []int, included []*model.Evidence) []model.SourceRef {
	var sources []model.SourceRef
	seen := map[int]bool{}
	for _, marker := range markers {
		if marker < 1 || marker > len(included) || seen[marker] {
			continue
		}
		seen[marker] = true
		sources = append(sources, model.NewSourceRef(marker-1, included[marker-1]))
	}
	return sources
}

func degradedResponse(raw string, validationErr error) *model.QueryResponse {
	original := []rune(raw)
	if len(original) > 100 {
		original = append(original[:100], []rune("...")...)
	}
	return &model.QueryResponse{
		Answer:    DegradedAnswer,
		Reasoning: fmt.Sprintf("The model reply did not match the expected format: %v. Original response: %s", validationErr, string(original)),
		Entities:  []model.Entity{},
		Degraded:  true,
	}
}
