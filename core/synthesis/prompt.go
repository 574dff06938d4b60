package synthesis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/docqa/core/llm"
	"github.com/siherrmann/docqa/model"
)

const systemPrompt = `You are an assistant that answers questions based on the provided documents.
Your response must be a JSON object with the following structure:
{
  "answer": "Your concise and informative answer",
  "reasoning": "Your step by step reasoning explaining how you arrived at the answer",
  "cited_sources": [1, 2]
}

### Context Documents:
%s

### Instructions:
1. Answer using ONLY the numbered context documents above.
2. List the numbers of the documents you used in "cited_sources".
3. If the documents contain conflicting information, note this in your reasoning and explain your conclusion.
4. If the documents do not contain the answer, state that clearly in the answer.
5. If you are uncertain or the information is ambiguous, note this in your reasoning.
`

const userPrompt = `Please answer the following question based on the context documents:

%s

Provide your answer as a JSON object with "answer", "reasoning" and "cited_sources" fields.`

const correctionPrompt = `Your previous reply could not be used: %s.
Reply again with ONLY a JSON object of the form {"answer": string, "reasoning": string, "cited_sources": [integers]}. Do not add any text outside the JSON object.`

// formatEvidence renders one evidence item with its 1-based marker.
func formatEvidence(marker int, evidence *model.Evidence) string {
	source := "Unknown"
	content := ""
	if evidence.Chunk != nil {
		if evidence.Chunk.Source != "" {
			source = evidence.Chunk.Source
		}
		content = evidence.Chunk.Content
	}
	return fmt.Sprintf("[%d] (Source: %s):\n%s", marker, source, content)
}

// buildContext adds evidence in rank order while the rendered block fits into budget characters.
// The first item that does not fit and all items after it are dropped.
func buildContext(evidence []*model.Evidence, budget int) ([]*model.Evidence, string) {
	var parts []string
	used := 0
	included := 0
	for i, item := range evidence {
		part := formatEvidence(i+1, item)
		size := utf8.RuneCountInString(part)
		if len(parts) > 0 {
			size += 2
		}
		if used+size > budget {
			break
		}
		parts = append(parts, part)
		used += size
		included++
	}
	return evidence[:included], strings.Join(parts, "\n\n")
}

func buildMessages(question string, context string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, context)},
		{Role: llm.RoleUser, Content: fmt.Sprintf(userPrompt, question)},
	}
}

func correctionMessages(messages []llm.Message, reply string, validationErr error) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+2)
	out = append(out, messages...)
	return append(out,
		llm.Message{Role: llm.RoleAssistant, Content: reply},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(correctionPrompt, validationErr)},
	)
}
