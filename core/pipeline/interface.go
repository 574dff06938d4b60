package pipeline

import (
	"context"
	"fmt"

	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

// ChunkFunc splits text into ordered chunks.
// basePath prefixes the path of every chunk, usually the document RID.
type ChunkFunc func(text string, basePath string) ([]ChunkWithPath, error)

// EmbedFunc generates one embedding per input text, in input order
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EntityExtractFunc extracts named entities from text
type EntityExtractFunc func(ctx context.Context, text string) ([]model.Entity, error)

// ChunkWithPath represents a chunk with its path and rune offsets into the chunked text
type ChunkWithPath struct {
	Content    string
	Path       string
	StartPos   int
	EndPos     int
	ChunkIndex int
	Metadata   model.Metadata
}

// Pipeline combines text cleaning, chunking and embedding
type Pipeline struct {
	Chunker         ChunkFunc
	Embedder        EmbedFunc
	EntityExtractor EntityExtractFunc // Optional
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// SetEntityExtractor sets the entity extraction function
func (p *Pipeline) SetEntityExtractor(extractor EntityExtractFunc) {
	p.EntityExtractor = extractor
}

// Process cleans and chunks the document content and embeds all chunks in one batch.
// Chunk offsets refer to runes of doc.Content.
// Empty content yields no chunks and no embedding call.
func (p *Pipeline) Process(ctx context.Context, doc *model.Document) ([]*model.Chunk, error) {
	if p.Chunker == nil || p.Embedder == nil {
		return nil, helper.NewError("process", fmt.Errorf("pipeline needs a chunker and an embedder"))
	}

	text, offsets := cleanText(doc.Content)
	chunksWithPath, err := p.Chunker(string(text), doc.RID.String())
	if err != nil {
		return nil, helper.NewError("chunk", err)
	}
	if len(chunksWithPath) == 0 {
		return []*model.Chunk{}, nil
	}

	contents := make([]string, len(chunksWithPath))
	for i, cwp := range chunksWithPath {
		contents[i] = cwp.Content
	}

	embeddings, err := p.Embedder(ctx, contents)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(contents) {
		return nil, helper.NewError("embed", fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(contents)))
	}

	chunks := make([]*model.Chunk, 0, len(chunksWithPath))
	for i, cwp := range chunksWithPath {
		metadata := doc.Metadata.Copy()
		for k, v := range cwp.Metadata {
			metadata[k] = v
		}
		if doc.Quality != "" {
			metadata["quality"] = string(doc.Quality)
		}

		chunks = append(chunks, &model.Chunk{
			ID:          model.ChunkID(doc.RID, cwp.ChunkIndex),
			DocumentRID: doc.RID,
			Source:      doc.Name(),
			ChunkIndex:  cwp.ChunkIndex,
			Content:     cwp.Content,
			StartPos:    sourceOffset(offsets, cwp.StartPos, false),
			EndPos:      sourceOffset(offsets, cwp.EndPos, true),
			Embedding:   embeddings[i],
			Metadata:    metadata,
		})
	}

	return chunks, nil
}

// sourceOffset translates a rune offset of the cleaned text into one of the raw content.
// An end offset points directly behind the raw rune of the last cleaned rune.
func sourceOffset(offsets []int, pos int, end bool) int {
	if len(offsets) == 0 {
		return 0
	}
	if end {
		if pos <= 0 {
			return offsets[0]
		}
		if pos > len(offsets) {
			pos = len(offsets)
		}
		return offsets[pos-1] + 1
	}
	if pos >= len(offsets) {
		return offsets[len(offsets)-1] + 1
	}
	return offsets[pos]
}

// ExtractEntities runs the entity extractor if one is set.
func (p *Pipeline) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if p.EntityExtractor == nil {
		return []model.Entity{}, nil
	}
	return p.EntityExtractor(ctx, text)
}
