package pipeline

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 100
)

// separatorLevels lists chunk boundaries from strongest to weakest.
// Separators on the same level are equivalent.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// RecursiveChunker creates a chunker that cuts at the strongest boundary
// lying between minSize and size runes after the chunk start.
// Without such a boundary a window of exactly size runes is cut.
// Each chunk after the first starts overlap runes before the end of its predecessor.
func RecursiveChunker(size int, overlap int, minSize int) ChunkFunc {
	return func(text string, basePath string) ([]ChunkWithPath, error) {
		if size <= 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		if overlap < 0 {
			overlap = 0
		}
		if overlap >= size {
			overlap = size / 4
		}
		if minSize < 0 {
			minSize = 0
		}
		if minSize > size {
			minSize = size
		}

		if strings.TrimSpace(text) == "" {
			return []ChunkWithPath{}, nil
		}

		runes := []rune(text)
		chunks := []ChunkWithPath{}
		start := 0
		for chunkIdx := 0; start < len(runes); chunkIdx++ {
			end := start + size
			if end >= len(runes) {
				end = len(runes)
			} else {
				end = findBoundary(runes, start, minSize, end)
			}

			chunks = append(chunks, ChunkWithPath{
				Content:    string(runes[start:end]),
				Path:       fmt.Sprintf("%s_%d", basePath, chunkIdx),
				StartPos:   start,
				EndPos:     end,
				ChunkIndex: chunkIdx,
				Metadata:   map[string]interface{}{},
			})

			if end == len(runes) {
				break
			}

			next := end - overlap
			if next <= start {
				next = start + 1
			}
			start = next
		}

		return chunks, nil
	}
}

// findBoundary returns the chunk end for a chunk starting at start.
// The end is placed directly after the last separator of the strongest level
// that ends inside [start+minSize, limit], and at limit otherwise.
func findBoundary(runes []rune, start int, minSize int, limit int) int {
	lowest := start + minSize
	if lowest <= start {
		lowest = start + 1
	}

	for _, level := range separatorLevels {
		for end := limit; end >= lowest; end-- {
			for _, sep := range level {
				if endsWith(runes, start, end, sep) {
					return end
				}
			}
		}
	}

	return limit
}

func endsWith(runes []rune, start int, end int, sep string) bool {
	sepRunes := []rune(sep)
	if end-len(sepRunes) < start {
		return false
	}
	for i, r := range sepRunes {
		if runes[end-len(sepRunes)+i] != r {
			return false
		}
	}
	return true
}
