package model

// Entity is a named entity found in an answer.
// Only text and type are part of the query response.
type Entity struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Score float32 `json:"-"`
	Start int     `json:"-"`
	End   int     `json:"-"`
}
