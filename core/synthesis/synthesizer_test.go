package synthesis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/core/llm"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChat replies with the given texts in order and records every conversation.
type scriptedChat struct {
	replies       []string
	err           error
	conversations [][]llm.Message
}

func (c *scriptedChat) chat(ctx context.Context, messages []llm.Message) (string, error) {
	c.conversations = append(c.conversations, messages)
	if c.err != nil {
		return "", c.err
	}
	if len(c.conversations) > len(c.replies) {
		return "", errors.New("unexpected chat call")
	}
	return c.replies[len(c.conversations)-1], nil
}

func testEvidence(contents ...string) []*model.Evidence {
	rid := uuid.New()
	evidence := make([]*model.Evidence, len(contents))
	for i, content := range contents {
		evidence[i] = &model.Evidence{
			Chunk: &model.Chunk{
				ID:          model.ChunkID(rid, i),
				DocumentRID: rid,
				Source:      "geo.txt",
				ChunkIndex:  i,
				Content:     content,
			},
			Score: 0.9 - float64(i)*0.1,
			Rank:  i,
		}
	}
	return evidence
}

func TestSynthesize(t *testing.T) {
	t.Run("Returns valid reply with cited sources", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"answer":"Paris","reasoning":"Document [1] says so.","cited_sources":[1]}`}}
		synthesizer := NewSynthesizer(chat.chat, 0, nil)
		evidence := testEvidence("The capital of France is Paris.", "Berlin is in Germany.")

		response, err := synthesizer.Synthesize(context.Background(), "What is the capital of France?", evidence)
		require.NoError(t, err)

		assert.Equal(t, "Paris", response.Answer)
		assert.Equal(t, "Document [1] says so.", response.Reasoning)
		assert.False(t, response.Degraded)
		assert.NotNil(t, response.Entities)
		require.Len(t, response.Sources, 1)
		assert.Equal(t, evidence[0].Chunk.ID, response.Sources[0].ChunkID)
		assert.Equal(t, 0, response.Sources[0].Evidence)

		require.Len(t, chat.conversations, 1)
		system := chat.conversations[0][0].Content
		assert.Contains(t, system, "[1] (Source: geo.txt):\nThe capital of France is Paris.")
		assert.Contains(t, system, "[2] (Source: geo.txt):\nBerlin is in Germany.")
		assert.Contains(t, chat.conversations[0][1].Content, "What is the capital of France?")
	})

	t.Run("Empty evidence answers without model call", func(t *testing.T) {
		chat := &scriptedChat{}
		synthesizer := NewSynthesizer(chat.chat, 0, nil)

		response, err := synthesizer.Synthesize(context.Background(), "What is the capital of Mars?", nil)
		require.NoError(t, err)

		assert.Equal(t, InsufficientInformationAnswer, response.Answer)
		assert.Empty(t, response.Sources)
		assert.Empty(t, chat.conversations, "No model call should be made")
	})

	t.Run("Retries once after malformed reply", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{
			`The answer is Paris.`,
			`{"answer":"Paris","reasoning":"From [1].","cited_sources":[1]}`,
		}}
		synthesizer := NewSynthesizer(chat.chat, 0, nil)

		response, err := synthesizer.Synthesize(context.Background(), "Capital?", testEvidence("The capital of France is Paris."))
		require.NoError(t, err)

		assert.Equal(t, "Paris", response.Answer)
		assert.Equal(t, "From [1].", response.Reasoning)
		assert.False(t, response.Degraded)
		require.Len(t, chat.conversations, 2)

		retry := chat.conversations[1]
		require.Len(t, retry, 4, "Retry should append the invalid reply and a correction")
		assert.Equal(t, llm.RoleAssistant, retry[2].Role)
		assert.Equal(t, "The answer is Paris.", retry[2].Content)
		assert.Contains(t, retry[3].Content, "reply is not valid JSON")
	})

	t.Run("Degrades after two invalid replies", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"answer":42}`, `plain text answer`}}
		synthesizer := NewSynthesizer(chat.chat, 0, nil)

		response, err := synthesizer.Synthesize(context.Background(), "Capital?", testEvidence("Paris."))
		require.NoError(t, err, "Validation failures should never raise")

		assert.True(t, response.Degraded)
		assert.Equal(t, DegradedAnswer, response.Answer)
		assert.Contains(t, response.Reasoning, "reply is not valid JSON")
		assert.Contains(t, response.Reasoning, "plain text answer", "Raw reply should be kept")
		assert.Empty(t, response.Sources)
		assert.Len(t, chat.conversations, 2)
	})

	t.Run("Accepts replies in code fences", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"```json\n{\"answer\":\"Paris\",\"reasoning\":\"r\"}\n```"}}

		response, err := NewSynthesizer(chat.chat, 0, nil).Synthesize(context.Background(), "q", testEvidence("Paris."))
		require.NoError(t, err)

		assert.Equal(t, "Paris", response.Answer)
		assert.Len(t, chat.conversations, 1)
	})

	t.Run("Drops citations outside the provided evidence", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"answer":"a","reasoning":"r","cited_sources":[2,0,7,2,-1,1]}`}}
		evidence := testEvidence("one", "two")

		response, err := NewSynthesizer(chat.chat, 0, nil).Synthesize(context.Background(), "q", evidence)
		require.NoError(t, err)

		require.Len(t, response.Sources, 2)
		assert.Equal(t, evidence[1].Chunk.ID, response.Sources[0].ChunkID)
		assert.Equal(t, evidence[0].Chunk.ID, response.Sources[1].ChunkID)
	})

	t.Run("Cites only evidence within the budget", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"answer":"a","reasoning":"r","cited_sources":[1,2,3]}`}}
		evidence := testEvidence(strings.Repeat("a", 60), strings.Repeat("b", 60), strings.Repeat("c", 60))

		response, err := NewSynthesizer(chat.chat, 180, nil).Synthesize(context.Background(), "q", evidence)
		require.NoError(t, err)

		require.Len(t, response.Sources, 2)
		assert.NotContains(t, chat.conversations[0][0].Content, "ccc", "Third item should be dropped whole")
	})

	t.Run("Chat failure is a synthesis error", func(t *testing.T) {
		chatErr := errors.New("connection refused")
		chat := &scriptedChat{err: chatErr}

		response, err := NewSynthesizer(chat.chat, 0, nil).Synthesize(context.Background(), "q", testEvidence("Paris."))

		assert.Nil(t, response)
		assert.ErrorIs(t, err, model.ErrSynthesisFailed)
		assert.ErrorIs(t, err, chatErr)
	})

	t.Run("Chat failure on retry is a synthesis error", func(t *testing.T) {
		calls := 0
		chat := func(ctx context.Context, messages []llm.Message) (string, error) {
			calls++
			if calls == 1 {
				return "not json", nil
			}
			return "", errors.New("timeout")
		}

		_, err := NewSynthesizer(chat, 0, nil).Synthesize(context.Background(), "q", testEvidence("Paris."))
		assert.ErrorIs(t, err, model.ErrSynthesisFailed)
	})
}

func TestBuildContext(t *testing.T) {
	t.Run("Keeps everything within budget", func(t *testing.T) {
		evidence := testEvidence("one", "two")

		included, block := buildContext(evidence, 1000)

		assert.Len(t, included, 2)
		assert.Equal(t, "[1] (Source: geo.txt):\none\n\n[2] (Source: geo.txt):\ntwo", block)
	})

	t.Run("Drops the tail from the first item that does not fit", func(t *testing.T) {
		evidence := testEvidence(strings.Repeat("x", 50), strings.Repeat("y", 500), "z")

		included, block := buildContext(evidence, 200)

		require.Len(t, included, 1, "Small items after a dropped item stay dropped")
		assert.NotContains(t, block, "y")
		assert.NotContains(t, block, "\nz")
	})

	t.Run("First item over budget leaves nothing", func(t *testing.T) {
		included, block := buildContext(testEvidence(strings.Repeat("x", 100)), 50)

		assert.Empty(t, included)
		assert.Empty(t, block)
	})
}

func TestSynthesizeOverBudget(t *testing.T) {
	t.Run("Oversized evidence answers without model call", func(t *testing.T) {
		chat := &scriptedChat{}

		response, err := NewSynthesizer(chat.chat, 10, nil).Synthesize(context.Background(), "q", testEvidence(strings.Repeat("x", 100)))
		require.NoError(t, err)

		assert.Equal(t, InsufficientInformationAnswer, response.Answer)
		assert.Contains(t, response.Reasoning, "context budget")
		assert.Empty(t, chat.conversations)
	})

	t.Run("Oversized evidence is logged as warning", func(t *testing.T) {
		var out bytes.Buffer
		chat := &scriptedChat{}
		synthesizer := NewSynthesizer(chat.chat, 10, helper.NewLogger(&out, slog.LevelWarn))

		_, err := synthesizer.Synthesize(context.Background(), "q", testEvidence(strings.Repeat("x", 100)))
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Top evidence exceeds context budget")
		assert.Contains(t, out.String(), `"context_budget":10`)
	})

	t.Run("Missing evidence is not logged as warning", func(t *testing.T) {
		var out bytes.Buffer
		synthesizer := NewSynthesizer((&scriptedChat{}).chat, 10, helper.NewLogger(&out, slog.LevelWarn))

		_, err := synthesizer.Synthesize(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Empty(t, out.String())
	})
}

func TestParseReply(t *testing.T) {
	t.Run("Requires string fields", func(t *testing.T) {
		_, err := parseReply(`{"answer":"a"}`)
		assert.EqualError(t, err, `field "reasoning" must be a string`)

		_, err = parseReply(`{"answer":["a"],"reasoning":"r"}`)
		assert.EqualError(t, err, `field "answer" must be a string`)
	})

	t.Run("Rejects non-object JSON", func(t *testing.T) {
		_, err := parseReply(`["answer"]`)
		assert.EqualError(t, err, "reply is not a JSON object")
	})

	t.Run("Cited sources are optional", func(t *testing.T) {
		reply, err := parseReply(`{"answer":"a","reasoning":"r","cited_sources":null}`)
		require.NoError(t, err)
		assert.Empty(t, reply.CitedSources)
	})

	t.Run("Cited sources must be integers", func(t *testing.T) {
		_, err := parseReply(`{"answer":"a","reasoning":"r","cited_sources":[1.5]}`)
		assert.Error(t, err)

		_, err = parseReply(`{"answer":"a","reasoning":"r","cited_sources":["1"]}`)
		assert.Error(t, err)

		_, err = parseReply(`{"answer":"a","reasoning":"r","cited_sources":1}`)
		assert.Error(t, err)
	})
}
