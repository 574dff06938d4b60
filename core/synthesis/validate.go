package synthesis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// answerReply is a model reply that passed validation.
type answerReply struct {
	Answer       string
	Reasoning    string
	CitedSources []int
}

// stripCodeFence removes a surrounding markdown code fence.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// parseReply validates raw against {"answer": string, "reasoning": string, "cited_sources"?: [int]}.
func parseReply(raw string) (*answerReply, error) {
	s := stripCodeFence(raw)
	if !gjson.Valid(s) {
		return nil, errors.New("reply is not valid JSON")
	}
	result := gjson.Parse(s)
	if !result.IsObject() {
		return nil, errors.New("reply is not a JSON object")
	}

	answer := result.Get("answer")
	if answer.Type != gjson.String {
		return nil, errors.New(`field "answer" must be a string`)
	}
	reasoning := result.Get("reasoning")
	if reasoning.Type != gjson.String {
		return nil, errors.New(`field "reasoning" must be a string`)
	}

	reply := &answerReply{
		Answer:       answer.String(),
		Reasoning:    reasoning.String(),
		CitedSources: []int{},
	}

	cited := result.Get("cited_sources")
	if !cited.Exists() || cited.Type == gjson.Null {
		return reply, nil
	}
	if !cited.IsArray() {
		return nil, errors.New(`field "cited_sources" must be an array of integers`)
	}
	for _, item := range cited.Array() {
		if item.Type != gjson.Number || item.Num != math.Trunc(item.Num) {
			return nil, fmt.Errorf(`field "cited_sources" contains non-integer %s`, item.Raw)
		}
		reply.CitedSources = append(reply.CitedSources, int(item.Num))
	}

	return reply, nil
}
